// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package report turns an analysis result into its output renditions:
// json records, a text table, and junit XML.
package report

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/perfscale/driftwatch/pkg/analyze"
	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/enrich"
)

// MetricCell is one metric of one run in the records output. A nil value
// marks a run the metric produced no data for.
type MetricCell struct {
	Value            *float64
	PercentageChange float64
	Labels           string
}

// Record is one run of the records output.
type Record struct {
	UUID          string
	Timestamp     int64
	Version       string
	BuildURL      string
	PRs           []string
	Display       map[string]string
	Metrics       map[string]*MetricCell
	IsChangePoint bool
	GitHubContext *enrich.ChangeContext
}

// ChangeContextProvider fetches GitHub context for a change point.
// *enrich.GitHubClient satisfies it.
type ChangeContextProvider interface {
	ChangeContext(ctx context.Context, previous, current int64, previousVersion, currentVersion string) *enrich.ChangeContext
}

// Options tunes record construction.
type Options struct {
	// Collapse keeps only the rows around change points.
	Collapse bool
	// GitHub, when set, attaches release and commit context to change
	// points.
	GitHub ChangeContextProvider
}

// BuildRecords renders the analysis result as one record per run. Change
// points decorate their row only when the shift moves in the metric's
// regression direction; GitHub context attaches either way.
func BuildRecords(ctx context.Context, result *analyze.Result, specs map[string]*config.Metric, opts Options) []Record {
	table := result.Table
	records := make([]Record, table.Len())
	for i, row := range table.Rows {
		cells := map[string]*MetricCell{}
		for _, column := range table.Columns {
			spec := specs[column]
			if spec == nil {
				continue
			}
			cells[column] = &MetricCell{
				Value:  row.Metrics[column],
				Labels: strings.Join(spec.Labels, " "),
			}
		}
		records[i] = Record{
			UUID:      row.UUID,
			Timestamp: row.Timestamp,
			Version:   row.Version,
			BuildURL:  row.BuildURL,
			PRs:       row.PRs,
			Display:   row.Display,
			Metrics:   cells,
		}
	}

	var keep []int
	kept := map[int]bool{}
	collect := func(index int) {
		if index >= 0 && index < len(records) && !kept[index] {
			kept[index] = true
			keep = append(keep, index)
		}
	}

	for _, column := range table.Columns {
		spec := specs[column]
		if spec == nil {
			continue
		}
		for _, cp := range result.ChangePoints[column] {
			pct := cp.Stats.PercentChange()
			if pct*float64(spec.Direction) > 0 || spec.Direction == 0 {
				records[cp.Index].Metrics[column].PercentageChange = pct
				records[cp.Index].IsChangePoint = true
				if opts.Collapse {
					collect(cp.Index - 1)
					collect(cp.Index)
					collect(cp.Index + 1)
				}
			}
			if opts.GitHub != nil && records[cp.Index].GitHubContext == nil {
				var previousTime int64
				var previousVersion string
				if cp.Index > 0 {
					previousTime = records[cp.Index-1].Timestamp
					previousVersion = records[cp.Index-1].Version
				}
				records[cp.Index].GitHubContext = opts.GitHub.ChangeContext(
					ctx,
					previousTime,
					records[cp.Index].Timestamp,
					previousVersion,
					records[cp.Index].Version,
				)
			}
		}
	}

	if !opts.Collapse {
		return records
	}
	collapsed := make([]Record, 0, len(keep))
	for _, index := range keep {
		collapsed = append(collapsed, records[index])
	}
	return collapsed
}

// MarshalRecords renders records as indented JSON. The run-identifier and
// version keys follow the test configuration.
func MarshalRecords(records []Record, uuidField, versionField string) ([]byte, error) {
	documents := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		metrics := map[string]interface{}{}
		for column, cell := range record.Metrics {
			metrics[column] = map[string]interface{}{
				"value":             cell.Value,
				"percentage_change": cell.PercentageChange,
				"labels":            cell.Labels,
			}
		}
		document := map[string]interface{}{
			uuidField:        record.UUID,
			"timestamp":      record.Timestamp,
			versionField:     record.Version,
			"buildUrl":       record.BuildURL,
			"metrics":        metrics,
			"is_changepoint": record.IsChangePoint,
		}
		if record.PRs != nil {
			document["prs"] = record.PRs
		}
		for field, value := range record.Display {
			document[field] = value
		}
		if record.GitHubContext != nil {
			document["github_context"] = record.GitHubContext
		}
		documents = append(documents, document)
	}
	return json.MarshalIndent(documents, "", "  ")
}
