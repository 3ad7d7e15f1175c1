// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/dataset"
)

func TestPeriodicVariant(t *testing.T) {
	test := config.Test{Name: "payload-scale"}
	test.Metadata.Set("jobType", "pull")
	test.Metadata.Set("pullNumber", "1234")
	test.Metadata.Set("organization", "openshift")
	test.Metadata.Set("repository", "origin")
	test.Metadata.Set("platform", "AWS")

	periodic := periodicVariant(test)

	jobType, _ := periodic.Metadata.Get("jobType")
	assert.Equal(t, "periodic", jobType)
	pullNumber, _ := periodic.Metadata.Get("pullNumber")
	assert.Equal(t, "0", pullNumber)
	_, hasOrg := periodic.Metadata.Get("organization")
	assert.False(t, hasOrg)
	_, hasRepo := periodic.Metadata.Get("repository")
	assert.False(t, hasRepo)

	// the original stays a pull test
	jobType, _ = test.Metadata.Get("jobType")
	assert.Equal(t, "pull", jobType)
	platform, _ := periodic.Metadata.Get("platform")
	assert.Equal(t, "AWS", platform)
}

func TestMetadataFromDocument(t *testing.T) {
	document := map[string]interface{}{
		"platform":         "AWS",
		"workerNodesCount": float64(24),
		"masterNodesCount": float64(0),
		"fips":             false,
		"ipsec":            true,
		"networkType":      "",
		"ocpVersion":       "4.17.0-rc.2",
		"benchmark":        "cluster-density-v2",
		"jobStatus":        "success",
	}

	meta := metadataFromDocument(document, "ocpVersion")

	platform, ok := meta.Get("platform")
	require.True(t, ok)
	assert.Equal(t, "AWS", platform)
	workers, ok := meta.Get("workerNodesCount")
	require.True(t, ok)
	assert.Equal(t, "24", workers)
	ipsec, ok := meta.Get("ipsec")
	require.True(t, ok)
	assert.Equal(t, "true", ipsec)
	version, ok := meta.Get("ocpVersion")
	require.True(t, ok)
	assert.Equal(t, "4.17.0-rc.2", version)
	benchmark, ok := meta.Get("benchmark.keyword")
	require.True(t, ok)
	assert.Equal(t, "cluster-density-v2", benchmark)

	// zero, false and empty values must not become match clauses
	_, ok = meta.Get("masterNodesCount")
	assert.False(t, ok)
	_, ok = meta.Get("fips")
	assert.False(t, ok)
	_, ok = meta.Get("networkType")
	assert.False(t, ok)
	// fields outside the whitelist are ignored
	_, ok = meta.Get("jobStatus")
	assert.False(t, ok)
}

func TestSplitBaseline(t *testing.T) {
	assert.Equal(t,
		[]string{"aaa", "bbb", "ccc"},
		splitBaseline("aaa,bbb ccc"))
	assert.Equal(t,
		[]string{"aaa", "bbb"},
		splitBaseline(" aaa | bbb "))
	assert.Empty(t, splitBaseline(""))
}

func TestShouldJobFilter(t *testing.T) {
	meta := config.Metadata{}
	meta.Set("benchmark.keyword", "cluster-density-v2")
	assert.True(t, shouldJobFilter(meta, "ripsaw-kube-burner", "", false))
	assert.False(t, shouldJobFilter(meta, "ripsaw-kube-burner", "base-uuid", false))
	assert.False(t, shouldJobFilter(meta, "ripsaw-kube-burner", "", true))
	assert.False(t, shouldJobFilter(meta, "ingress-performance", "", false))

	// a fingerprint without a benchmark never filters, whatever the index
	unnamed := config.Metadata{}
	unnamed.Set("jobType", "periodic")
	assert.False(t, shouldJobFilter(unnamed, "ripsaw-kube-burner", "", false))

	pinned := config.Metadata{}
	pinned.Set("jobConfig.name", "cluster-density")
	assert.False(t, shouldJobFilter(pinned, "ripsaw-kube-burner", "", false))

	netperf := config.Metadata{}
	netperf.Set("benchmark.keyword", "k8s-netperf")
	assert.False(t, shouldJobFilter(netperf, "ripsaw-kube-burner", "", false))
}

func TestPullTitle(t *testing.T) {
	test := &config.Test{Name: "payload-scale"}
	assert.Equal(t, "payload-scale", pullTitle(test))

	test.Metadata.Set("pullNumber", "0")
	assert.Equal(t, "payload-scale", pullTitle(test))

	test.Metadata.Set("pullNumber", "1234")
	assert.Equal(t, "payload-scale | Pull Request #1234", pullTitle(test))
}

func TestRenderAverageFoldsPeriodicRuns(t *testing.T) {
	v := func(f float64) *float64 { return &f }
	table := &dataset.Table{
		UUIDField: "uuid",
		Columns:   []string{"podReadyLatency_P99"},
		Rows: []dataset.Row{
			{UUID: "run-a", Timestamp: 100, Metrics: map[string]*float64{"podReadyLatency_P99": v(10)}},
			{UUID: "run-b", Timestamp: 200, Metrics: map[string]*float64{"podReadyLatency_P99": v(20)}},
		},
	}
	specs := map[string]*config.Metric{
		"podReadyLatency_P99": {Name: "podReadyLatency", MetricOfInterest: "P99"},
	}
	data := &testData{table: table, specs: specs}
	test := &config.Test{Name: "payload-scale"}
	test.ApplyDefaults()

	c := New(Options{OutputFormat: FormatText})
	out, err := c.renderAverage(context.Background(), test, data)
	require.NoError(t, err)
	assert.Contains(t, out, "Average")
	assert.Contains(t, out, "15")
	// one folded row only
	assert.NotContains(t, out, "run-a")
}

func TestArtifactPaths(t *testing.T) {
	assert.Equal(t, "data-payload-scale.csv", sideDataPath("data.csv", "payload-scale"))
	assert.Equal(t, "output_payload-scale.json", prowArtifactPath("output.txt", "payload-scale"))

	assert.Equal(t, "output_payload-scale.json", OutputPath("output.txt", "payload-scale", FormatJSON))
	assert.Equal(t, "output_payload-scale.xml", OutputPath("output.txt", "payload-scale", FormatJUnit))
	assert.Equal(t, "output_payload-scale_pull.txt", OutputPath("output.txt", "payload-scale_pull", FormatText))
}

func TestWindowFromLookback(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	c := New(Options{Lookback: 15 * 24 * time.Hour, MaxRows: 100})
	c.now = func() time.Time { return now }

	test := &config.Test{}
	window := c.window(context.Background(), test)

	require.NotNil(t, window.start)
	assert.Equal(t, now.AddDate(0, 0, -15), *window.start)
	assert.Nil(t, window.end)
	assert.Equal(t, 100, window.maxRows)
}

func TestWindowSinceBoundsTheEnd(t *testing.T) {
	since := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	c := New(Options{Lookback: 5 * 24 * time.Hour, Since: &since})
	c.now = func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC) }

	window := c.window(context.Background(), &config.Test{})

	require.NotNil(t, window.end)
	assert.Equal(t, since, *window.end)
	require.NotNil(t, window.start)
	// the lookback anchors on the since bound, not on now
	assert.Equal(t, since.AddDate(0, 0, -5), *window.start)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("", "a", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
