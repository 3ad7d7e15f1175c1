// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package iforest implements a seeded isolation forest for multivariate
// outlier scoring. Scoring is deterministic for a given seed and input.
package iforest

import (
	"math"
	"math/rand"
)

const (
	// DefaultTrees is the forest size.
	DefaultTrees = 100
	// DefaultSampleSize caps the subsample each tree is grown from.
	DefaultSampleSize = 256

	eulerMascheroni = 0.5772156649
)

// Config tunes forest construction.
type Config struct {
	Trees      int
	SampleSize int
	Seed       int64
}

// Forest is a fitted isolation forest.
type Forest struct {
	trees      []*node
	sampleSize int
}

type node struct {
	left    *node
	right   *node
	feature int
	split   float64
	size    int
}

// Fit grows the forest from the given observation matrix. Rows are
// observations, columns are features.
func Fit(data [][]float64, cfg Config) *Forest {
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultTrees
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	sampleSize := cfg.SampleSize
	if sampleSize > len(data) {
		sampleSize = len(data)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	heightLimit := int(math.Ceil(math.Log2(math.Max(float64(sampleSize), 2))))

	forest := &Forest{sampleSize: sampleSize}
	for i := 0; i < cfg.Trees; i++ {
		sample := rng.Perm(len(data))[:sampleSize]
		forest.trees = append(forest.trees, grow(data, sample, 0, heightLimit, rng))
	}
	return forest
}

func grow(data [][]float64, idx []int, depth, limit int, rng *rand.Rand) *node {
	if depth >= limit || len(idx) <= 1 {
		return &node{size: len(idx)}
	}

	// features where the subsample still spreads
	var candidates []int
	for f := 0; f < len(data[idx[0]]); f++ {
		lo, hi := featureRange(data, idx, f)
		if hi > lo {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(idx)}
	}

	feature := candidates[rng.Intn(len(candidates))]
	lo, hi := featureRange(data, idx, feature)
	split := lo + rng.Float64()*(hi-lo)

	var left, right []int
	for _, i := range idx {
		if data[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		feature: feature,
		split:   split,
		size:    len(idx),
		left:    grow(data, left, depth+1, limit, rng),
		right:   grow(data, right, depth+1, limit, rng),
	}
}

func featureRange(data [][]float64, idx []int, feature int) (float64, float64) {
	lo, hi := data[idx[0]][feature], data[idx[0]][feature]
	for _, i := range idx[1:] {
		v := data[i][feature]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Score returns the anomaly score in (0, 1). Scores near 1 indicate
// observations that isolate quickly; inliers stay near or below 0.5.
func (f *Forest) Score(x []float64) float64 {
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, x, 0)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/unsuccessfulSearchLength(f.sampleSize))
}

// Anomalous reports whether the observation scores past the midpoint,
// matching the auto-contamination convention.
func (f *Forest) Anomalous(x []float64) bool {
	return f.Score(x) > 0.5
}

func pathLength(n *node, x []float64, depth int) float64 {
	if n.left == nil {
		return float64(depth) + unsuccessfulSearchLength(n.size)
	}
	if x[n.feature] < n.split {
		return pathLength(n.left, x, depth+1)
	}
	return pathLength(n.right, x, depth+1)
}

// unsuccessfulSearchLength is the expected BST search depth used to
// normalise path lengths.
func unsuccessfulSearchLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	nf := float64(n)
	return 2*(math.Log(nf-1)+eulerMascheroni) - 2*(nf-1)/nf
}
