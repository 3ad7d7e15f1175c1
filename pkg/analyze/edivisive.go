// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package analyze

import (
	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/dataset"
	"github.com/perfscale/driftwatch/pkg/logger/log"
)

// eDivisive runs the series detector per metric column. Null cells are
// skipped; detected indices are mapped back to table row positions.
type eDivisive struct {
	analyzer SeriesAnalyzer
}

func (a *eDivisive) Analyze(table *dataset.Table, specs map[string]*config.Metric) (*Result, error) {
	log.Info("starting analysis using e-divisive")
	points := map[string][]ChangePoint{}
	for _, column := range table.Columns {
		if specs[column] == nil {
			continue
		}
		values, rowIndex := table.MetricSeries(column)
		detected, err := a.analyzer.ChangePoints(values)
		if err != nil {
			return nil, err
		}
		for _, p := range detected {
			row := rowIndex[p.Index]
			points[column] = append(points[column], ChangePoint{
				Metric: column,
				Index:  row,
				Time:   table.Rows[row].Timestamp,
				Stats: ComparativeStats{
					MeanBefore: p.Stats.MeanBefore,
					MeanAfter:  p.Stats.MeanAfter,
					StdBefore:  p.Stats.StdBefore,
					StdAfter:   p.Stats.StdAfter,
					PValue:     p.Stats.PValue,
				},
			})
		}
	}
	return &Result{Table: table, ChangePoints: points}, nil
}
