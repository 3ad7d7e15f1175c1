// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package iforest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterWithOutlier() [][]float64 {
	var data [][]float64
	for i := 0; i < 50; i++ {
		data = append(data, []float64{float64(i%5) * 0.1, float64(i%7) * 0.1})
	}
	data = append(data, []float64{10, 10})
	return data
}

func TestOutlierScoresPastMidpoint(t *testing.T) {
	data := clusterWithOutlier()
	forest := Fit(data, Config{Seed: 42})

	outlier := data[len(data)-1]
	inlier := data[0]
	assert.Greater(t, forest.Score(outlier), forest.Score(inlier))
	assert.True(t, forest.Anomalous(outlier))
	assert.False(t, forest.Anomalous(inlier))
}

func TestScoringIsDeterministicForSeed(t *testing.T) {
	data := clusterWithOutlier()
	a := Fit(data, Config{Seed: 42})
	b := Fit(data, Config{Seed: 42})
	for _, point := range data {
		assert.Equal(t, a.Score(point), b.Score(point))
	}
}

func TestDegenerateData(t *testing.T) {
	// identical observations cannot be isolated
	data := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	forest := Fit(data, Config{Seed: 42})
	require.NotNil(t, forest)
	assert.False(t, forest.Anomalous(data[0]))
}

func TestSampleSizeCappedByData(t *testing.T) {
	data := [][]float64{{0}, {0.1}, {0.2}, {100}}
	forest := Fit(data, Config{Trees: 50, SampleSize: 256, Seed: 42})
	assert.True(t, forest.Score(data[3]) > forest.Score(data[0]))
}
