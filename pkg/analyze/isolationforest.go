// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package analyze

import (
	"math"

	"github.com/perfscale/driftwatch/pkg/analyze/iforest"
	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/dataset"
	"github.com/perfscale/driftwatch/pkg/logger/log"
)

// forestSeed makes repeated runs over the same table deterministic.
const forestSeed = 42

// isolationForestWeightedMean scores rows with a multivariate isolation
// forest and keeps anomalous rows whose deviation against a trailing
// moving average clears the percentage floor in the metric's direction.
type isolationForestWeightedMean struct {
	window     int
	minPercent float64
}

func (a *isolationForestWeightedMean) Analyze(table *dataset.Table, specs map[string]*config.Metric) (*Result, error) {
	log.Info("starting analysis using isolation forest")

	var columns []string
	for _, column := range table.Columns {
		if specs[column] != nil {
			columns = append(columns, column)
		}
	}

	points := map[string][]ChangePoint{}
	if len(columns) == 0 {
		return &Result{Table: table, ChangePoints: points}, nil
	}

	// rows with a null cell cannot be scored
	var matrix [][]float64
	var rowIndex []int
	for i := range table.Rows {
		vector := make([]float64, 0, len(columns))
		complete := true
		for _, column := range columns {
			v := table.Rows[i].Metrics[column]
			if v == nil {
				complete = false
				break
			}
			vector = append(vector, *v)
		}
		if complete {
			matrix = append(matrix, vector)
			rowIndex = append(rowIndex, i)
		}
	}
	if len(matrix) == 0 {
		return &Result{Table: table, ChangePoints: points}, nil
	}

	forest := iforest.Fit(matrix, iforest.Config{Seed: forestSeed})
	for idx, vector := range matrix {
		if !forest.Anomalous(vector) {
			continue
		}
		if idx < a.window-1 {
			// moving average not yet defined
			continue
		}
		for f, column := range columns {
			average := trailingMean(matrix, idx, f, a.window)
			pctChange := (vector[f] - average) / average * 100
			if math.Abs(pctChange) <= a.minPercent {
				continue
			}
			direction := specs[column].Direction
			if pctChange*float64(direction) > 0 || direction == 0 {
				row := rowIndex[idx]
				points[column] = append(points[column], ChangePoint{
					Metric: column,
					Index:  row,
					Time:   table.Rows[row].Timestamp,
					Stats: ComparativeStats{
						MeanBefore: average,
						MeanAfter:  vector[f],
						PValue:     1,
					},
				})
			}
		}
	}
	return &Result{Table: table, ChangePoints: points}, nil
}

// trailingMean averages the window ending at and including row idx.
func trailingMean(matrix [][]float64, idx, feature, window int) float64 {
	total := 0.0
	for i := idx - window + 1; i <= idx; i++ {
		total += matrix[i][feature]
	}
	return total / float64(window)
}
