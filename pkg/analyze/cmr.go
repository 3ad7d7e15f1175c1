// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package analyze

import (
	"strings"

	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/dataset"
	"github.com/perfscale/driftwatch/pkg/logger/log"
)

// meanResponseComparison collapses every run but the newest into a single
// averaged baseline row and compares the newest run against it. The result
// carries the collapsed two-row table.
type meanResponseComparison struct{}

func (a *meanResponseComparison) Analyze(table *dataset.Table, specs map[string]*config.Metric) (*Result, error) {
	log.Info("starting analysis using mean-response comparison")
	points := map[string][]ChangePoint{}
	if table.Len() <= 1 {
		// nothing to compare against
		return &Result{Table: table, ChangePoints: points}, nil
	}

	collapsed := collapseBaseline(table)
	baseline := collapsed.Rows[0]
	current := collapsed.Rows[1]
	for _, column := range collapsed.Columns {
		if specs[column] == nil {
			continue
		}
		before := baseline.Metrics[column]
		after := current.Metrics[column]
		if before == nil || after == nil {
			continue
		}
		points[column] = append(points[column], ChangePoint{
			Metric: column,
			Index:  1,
			Time:   0,
			Stats: ComparativeStats{
				MeanBefore: *before,
				MeanAfter:  *after,
				PValue:     1,
			},
		})
	}
	return &Result{Table: collapsed, ChangePoints: points}, nil
}

// collapseBaseline folds all rows but the last into one aggregate row.
// Numeric cells average over the non-null values, everything else joins
// with commas.
func collapseBaseline(t *dataset.Table) *dataset.Table {
	prior := t.Rows[:t.Len()-1]
	last := t.Rows[t.Len()-1]

	aggregate := dataset.Row{
		UUID:     joinField(prior, func(r dataset.Row) string { return r.UUID }),
		Version:  joinField(prior, func(r dataset.Row) string { return r.Version }),
		BuildURL: joinField(prior, func(r dataset.Row) string { return r.BuildURL }),
		Metrics:  map[string]*float64{},
	}

	var tsTotal int64
	for _, row := range prior {
		tsTotal += row.Timestamp
	}
	aggregate.Timestamp = tsTotal / int64(len(prior))

	for _, column := range t.Columns {
		total := 0.0
		count := 0
		for _, row := range prior {
			if v := row.Metrics[column]; v != nil {
				total += *v
				count++
			}
		}
		if count == 0 {
			aggregate.Metrics[column] = nil
			continue
		}
		mean := total / float64(count)
		aggregate.Metrics[column] = &mean
	}

	if len(t.DisplayColumns) > 0 {
		aggregate.Display = map[string]string{}
		for _, column := range t.DisplayColumns {
			aggregate.Display[column] = joinField(prior, func(r dataset.Row) string { return r.Display[column] })
		}
	}

	return &dataset.Table{
		UUIDField:      t.UUIDField,
		Columns:        t.Columns,
		DisplayColumns: t.DisplayColumns,
		Rows:           []dataset.Row{aggregate, last},
	}
}

func joinField(rows []dataset.Row, field func(dataset.Row) string) string {
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, field(row))
	}
	return strings.Join(parts, ",")
}
