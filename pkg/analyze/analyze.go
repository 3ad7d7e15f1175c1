// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package analyze runs a change-point algorithm over an assembled table
// and narrows the raw candidates down to reportable regressions.
package analyze

import (
	"github.com/perfscale/driftwatch/pkg/analyze/edivisive"
	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/dataset"
	"github.com/perfscale/driftwatch/pkg/errors"
)

// Algorithm tags accepted by the factory.
const (
	AlgorithmEDivisive       = "edivisive"
	AlgorithmIsolationForest = "isolationforest"
	AlgorithmCMR             = "cmr"
)

const (
	// DefaultAnomalyWindow is the trailing window of the moving average the
	// isolation forest compares anomalous rows against.
	DefaultAnomalyWindow = 5
	// DefaultMinAnomalyPercent is the deviation an anomalous row must show
	// against its moving average to count as a change point.
	DefaultMinAnomalyPercent = 10
)

// ComparativeStats compares the data on either side of a change point.
type ComparativeStats struct {
	MeanBefore float64
	MeanAfter  float64
	StdBefore  float64
	StdAfter   float64
	PValue     float64
}

// PercentChange is the relative shift of the after mean against the
// before mean.
func (s ComparativeStats) PercentChange() float64 {
	if s.MeanBefore == 0 {
		return 0
	}
	return (s.MeanAfter - s.MeanBefore) / s.MeanBefore * 100
}

// ChangePoint marks one detected shift of one metric. Index is a row
// position in the analyzed table.
type ChangePoint struct {
	Metric string
	Index  int
	Time   int64
	Stats  ComparativeStats
}

// Result is the outcome of one analysis pass. Table is the table the
// indices refer to; the mean-comparison algorithm substitutes a collapsed
// one. Regression is set by the filter pass, not by the algorithms.
type Result struct {
	Table        *dataset.Table
	ChangePoints map[string][]ChangePoint
	Regression   bool
}

// Algorithm turns an assembled table into raw change-point candidates.
type Algorithm interface {
	Analyze(table *dataset.Table, specs map[string]*config.Metric) (*Result, error)
}

// SeriesAnalyzer detects mean shifts in a single dense metric series.
// The default implementation is the bisecting t-test detector; callers
// may substitute their own.
type SeriesAnalyzer interface {
	ChangePoints(values []float64) ([]edivisive.Point, error)
}

// Options tunes algorithm construction.
type Options struct {
	// Series overrides the change-point detector of the e-divisive
	// algorithm. Nil selects the default.
	Series SeriesAnalyzer
	// AnomalyWindow and MinAnomalyPercent tune the isolation forest.
	// Zero values select the defaults.
	AnomalyWindow     int
	MinAnomalyPercent float64
}

// New maps an algorithm tag to its implementation.
func New(name string, opts Options) (Algorithm, error) {
	switch name {
	case AlgorithmEDivisive:
		analyzer := opts.Series
		if analyzer == nil {
			analyzer = edivisive.NewDetector()
		}
		return &eDivisive{analyzer: analyzer}, nil
	case AlgorithmIsolationForest:
		window := opts.AnomalyWindow
		if window <= 0 {
			window = DefaultAnomalyWindow
		}
		minPercent := opts.MinAnomalyPercent
		if minPercent <= 0 {
			minPercent = DefaultMinAnomalyPercent
		}
		return &isolationForestWeightedMean{window: window, minPercent: minPercent}, nil
	case AlgorithmCMR:
		return &meanResponseComparison{}, nil
	}
	return nil, errors.NewError().WithCode(errors.InvalidArgument).
		WithMessagef("invalid algorithm %q", name)
}
