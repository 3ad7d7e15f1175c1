// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package edivisive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisySeries(segments ...struct {
	level float64
	count int
}) []float64 {
	var series []float64
	for _, segment := range segments {
		for i := 0; i < segment.count; i++ {
			jitter := float64(i%5)*0.1 - 0.2
			series = append(series, segment.level+jitter)
		}
	}
	return series
}

func segment(level float64, count int) struct {
	level float64
	count int
} {
	return struct {
		level float64
		count int
	}{level, count}
}

func TestDetectsSingleShift(t *testing.T) {
	series := noisySeries(segment(10, 10), segment(15, 10))
	points, err := NewDetector().ChangePoints(series)
	require.NoError(t, err)
	require.Len(t, points, 1)

	assert.Equal(t, 10, points[0].Index)
	assert.InDelta(t, 10, points[0].Stats.MeanBefore, 0.5)
	assert.InDelta(t, 15, points[0].Stats.MeanAfter, 0.5)
	assert.Less(t, points[0].Stats.PValue, 0.001)
}

func TestDetectsMultipleShifts(t *testing.T) {
	series := noisySeries(segment(10, 10), segment(20, 10), segment(10, 10))
	points, err := NewDetector().ChangePoints(series)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, 10, points[0].Index)
	assert.Equal(t, 20, points[1].Index)
	// middle segment bounds both comparisons
	assert.InDelta(t, 20, points[0].Stats.MeanAfter, 0.5)
	assert.InDelta(t, 20, points[1].Stats.MeanBefore, 0.5)
}

func TestFlatSeriesHasNoShift(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 10
	}
	points, err := NewDetector().ChangePoints(series)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestZeroVarianceStepIsSignificant(t *testing.T) {
	series := []float64{10, 10, 10, 10, 10, 20, 20, 20, 20, 20}
	points, err := NewDetector().ChangePoints(series)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 5, points[0].Index)
	assert.Zero(t, points[0].Stats.PValue)
}

func TestShortSeries(t *testing.T) {
	for _, series := range [][]float64{nil, {10}, {10, 20}, {10, 20, 30}} {
		points, err := NewDetector().ChangePoints(series)
		require.NoError(t, err)
		assert.Empty(t, points)
	}
}

func TestNoiseAloneIsNotSignificant(t *testing.T) {
	series := noisySeries(segment(10, 30))
	points, err := NewDetector().ChangePoints(series)
	require.NoError(t, err)
	assert.Empty(t, points)
}
