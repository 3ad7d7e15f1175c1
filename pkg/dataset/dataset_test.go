// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package dataset

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfscale/driftwatch/pkg/search"
)

func value(v float64) *float64 {
	return &v
}

func sampleFrames() []Frame {
	return []Frame{
		{
			Column: "podReadyLatency_P99",
			Samples: []search.MetricSample{
				{UUID: "run-b", Timestamp: 200, Value: value(12)},
				{UUID: "run-a", Timestamp: 100, Value: value(10)},
				{UUID: "run-c", Timestamp: 300, Value: value(14)},
			},
		},
		{
			Column: "apiserverCPU_avg",
			Samples: []search.MetricSample{
				{UUID: "run-a", Timestamp: 101, Value: value(1.5)},
				{UUID: "run-c", Timestamp: 301, Value: value(1.7)},
				// run-b missing: outer join keeps the row with a null cell
			},
		},
	}
}

func sampleRuns() []search.RunDescriptor {
	return []search.RunDescriptor{
		{UUID: "run-a", Version: "4.17.1", BuildURL: "https://ci/a"},
		{UUID: "run-b", Version: "4.17.2", BuildURL: "https://ci/b"},
		{UUID: "run-c", Version: "4.17.3", BuildURL: "https://ci/c"},
	}
}

func TestAssembleOuterJoinAndSort(t *testing.T) {
	table := Assemble(sampleFrames(), AssembleOptions{Runs: sampleRuns()})
	require.NotNil(t, table)
	require.Equal(t, 3, table.Len())

	// sorted ascending by timestamp
	assert.Equal(t, []string{"run-a", "run-b", "run-c"},
		[]string{table.Rows[0].UUID, table.Rows[1].UUID, table.Rows[2].UUID})
	for i := 1; i < table.Len(); i++ {
		assert.LessOrEqual(t, table.Rows[i-1].Timestamp, table.Rows[i].Timestamp)
	}

	// outer join keeps run-b with a null CPU cell
	assert.Nil(t, table.Rows[1].Metrics["apiserverCPU_avg"])
	assert.Equal(t, 12.0, *table.Rows[1].Metrics["podReadyLatency_P99"])

	// first-non-null timestamp in frame order
	assert.Equal(t, int64(100), table.Rows[0].Timestamp)

	assert.Equal(t, "4.17.2", table.Rows[1].Version)
	assert.Equal(t, "https://ci/b", table.Rows[1].BuildURL)
}

func TestAssembleJoinStability(t *testing.T) {
	frames := sampleFrames()
	reversed := []Frame{frames[1], frames[0]}

	a := Assemble(frames, AssembleOptions{Runs: sampleRuns()})
	b := Assemble(reversed, AssembleOptions{Runs: sampleRuns()})
	require.Equal(t, a.Len(), b.Len())
	for i := range a.Rows {
		assert.Equal(t, a.Rows[i].UUID, b.Rows[i].UUID)
		for _, column := range a.Columns {
			av := a.Rows[i].Metrics[column]
			bv := b.Rows[i].Metrics[column]
			if av == nil {
				assert.Nil(t, bv)
				continue
			}
			require.NotNil(t, bv)
			assert.Equal(t, *av, *bv)
		}
	}
}

func TestAssembleDeduplicatesRuns(t *testing.T) {
	frames := []Frame{{
		Column: "cpu_value",
		Samples: []search.MetricSample{
			{UUID: "run-a", Timestamp: 100, Value: value(1)},
			{UUID: "run-a", Timestamp: 150, Value: value(2)},
		},
	}}
	table := Assemble(frames, AssembleOptions{})
	require.Equal(t, 1, table.Len())
	assert.Equal(t, 1.0, *table.Rows[0].Metrics["cpu_value"])

	seen := map[string]bool{}
	for _, row := range table.Rows {
		assert.False(t, seen[row.UUID])
		seen[row.UUID] = true
	}
}

func TestAssembleEmptyYieldsNil(t *testing.T) {
	assert.Nil(t, Assemble(nil, AssembleOptions{}))
	assert.Nil(t, Assemble([]Frame{{Column: "cpu_value"}}, AssembleOptions{}))
}

func TestAssembleMissingRunContextUsesPlaceholder(t *testing.T) {
	frames := []Frame{{
		Column:  "cpu_value",
		Samples: []search.MetricSample{{UUID: "run-x", Timestamp: 100, Value: value(1)}},
	}}
	table := Assemble(frames, AssembleOptions{})
	require.Equal(t, 1, table.Len())
	assert.Equal(t, search.BogusURL, table.Rows[0].BuildURL)
}

func TestAssembleShortenHook(t *testing.T) {
	table := Assemble(sampleFrames(), AssembleOptions{
		Runs: sampleRuns(),
		Shorten: func(url string) string {
			return "https://tiny/" + strings.TrimPrefix(url, "https://ci/")
		},
	})
	assert.Equal(t, "https://tiny/a", table.Rows[0].BuildURL)
}

func TestAssembleDisplayColumnsKeepRequestedOrder(t *testing.T) {
	runs := sampleRuns()
	for i := range runs {
		runs[i].Display = map[string]string{
			"workerNodesCount": "24",
			"buildUrl":         runs[i].BuildURL,
			"networkType":      "OVNKubernetes",
		}
	}
	table := Assemble(sampleFrames(), AssembleOptions{
		Runs:          runs,
		DisplayFields: []string{"workerNodesCount", "networkType", "buildUrl"},
	})
	require.NotNil(t, table)
	assert.Equal(t, []string{"workerNodesCount", "networkType", "buildUrl"}, table.DisplayColumns)

	// fields the lookup did not resolve are left out
	table = Assemble(sampleFrames(), AssembleOptions{
		Runs:          runs,
		DisplayFields: []string{"networkType", "jobStatus"},
	})
	assert.Equal(t, []string{"networkType"}, table.DisplayColumns)
}

func TestTableAverage(t *testing.T) {
	table := Assemble(sampleFrames(), AssembleOptions{Runs: sampleRuns()})
	average := table.Average()

	require.Equal(t, 1, average.Len())
	row := average.Rows[0]
	assert.Equal(t, "Average", row.UUID)
	assert.Equal(t, 12.0, *row.Metrics["podReadyLatency_P99"])
	// nulls are left out of the mean
	assert.InDelta(t, 1.6, *row.Metrics["apiserverCPU_avg"], 1e-9)
	assert.Equal(t, int64(200), row.Timestamp)
}

func TestWriteCSV(t *testing.T) {
	table := Assemble(sampleFrames(), AssembleOptions{Runs: sampleRuns()})
	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "podReadyLatency_P99")
	// null cell renders as an empty field
	assert.Contains(t, lines[2], ",12,")
}

func TestMetricSeriesSkipsNulls(t *testing.T) {
	table := Assemble(sampleFrames(), AssembleOptions{Runs: sampleRuns()})
	values, rowIndex := table.MetricSeries("apiserverCPU_avg")
	require.Len(t, values, 2)
	assert.Equal(t, []int{0, 2}, rowIndex)
	assert.Equal(t, []float64{1.5, 1.7}, values)
}
