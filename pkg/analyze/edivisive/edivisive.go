// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package edivisive locates statistically significant mean shifts in a
// numeric series by recursive bisection with Welch's t-test.
package edivisive

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	defaultMaxPValue  = 0.001
	defaultMinSegment = 2
)

// Stats compares the windows on either side of a detected shift.
type Stats struct {
	MeanBefore float64
	MeanAfter  float64
	StdBefore  float64
	StdAfter   float64
	PValue     float64
}

// Point is one detected shift. Index is the position of the first value
// belonging to the after window.
type Point struct {
	Index int
	Stats Stats
}

// Detector splits the series at the most significant mean shift and
// recurses into both halves until no split passes the p-value bar.
type Detector struct {
	// MaxPValue is the significance bar a split must clear.
	MaxPValue float64
	// MinSegment is the smallest window allowed on either side of a split.
	MinSegment int
}

// NewDetector returns a detector with the standard significance settings.
func NewDetector() *Detector {
	return &Detector{MaxPValue: defaultMaxPValue, MinSegment: defaultMinSegment}
}

// ChangePoints returns the detected shifts in ascending index order. The
// comparative statistics of each point span the windows between its
// neighbouring shifts, not the windows used during bisection.
func (d *Detector) ChangePoints(values []float64) ([]Point, error) {
	var splits []int
	d.bisect(values, 0, len(values), &splits)
	sort.Ints(splits)

	bounds := make([]int, 0, len(splits)+2)
	bounds = append(bounds, 0)
	bounds = append(bounds, splits...)
	bounds = append(bounds, len(values))

	points := make([]Point, 0, len(splits))
	for i := 1; i < len(bounds)-1; i++ {
		before := values[bounds[i-1]:bounds[i]]
		after := values[bounds[i]:bounds[i+1]]
		points = append(points, Point{Index: bounds[i], Stats: windowStats(before, after)})
	}
	return points, nil
}

func (d *Detector) bisect(values []float64, lo, hi int, splits *[]int) {
	if hi-lo < 2*d.MinSegment {
		return
	}
	best := -1
	bestT := 0.0
	for k := lo + d.MinSegment; k <= hi-d.MinSegment; k++ {
		t := welchT(values[lo:k], values[k:hi])
		if math.IsNaN(t) {
			continue
		}
		if math.Abs(t) > bestT || best < 0 {
			bestT = math.Abs(t)
			best = k
		}
	}
	if best < 0 {
		return
	}
	if welchP(values[lo:best], values[best:hi]) >= d.MaxPValue {
		return
	}
	*splits = append(*splits, best)
	d.bisect(values, lo, best, splits)
	d.bisect(values, best, hi, splits)
}

func windowStats(before, after []float64) Stats {
	return Stats{
		MeanBefore: stat.Mean(before, nil),
		MeanAfter:  stat.Mean(after, nil),
		StdBefore:  stdDev(before),
		StdAfter:   stdDev(after),
		PValue:     welchP(before, after),
	}
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// welchT computes the unequal-variance t-statistic. Two windows with zero
// variance yield +-Inf when the means differ and 0 when they coincide.
func welchT(a, b []float64) float64 {
	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)
	if len(a) < 2 {
		varA = 0
	}
	if len(b) < 2 {
		varB = 0
	}
	se := math.Sqrt(varA/float64(len(a)) + varB/float64(len(b)))
	diff := meanA - meanB
	if se == 0 {
		if diff == 0 {
			return 0
		}
		return math.Inf(sign(diff))
	}
	return diff / se
}

func welchP(a, b []float64) float64 {
	t := welchT(a, b)
	if math.IsNaN(t) {
		return 1
	}
	if math.IsInf(t, 0) {
		return 0
	}
	nu := welchDF(a, b)
	if nu <= 0 {
		return 1
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}
	return 2 * dist.CDF(-math.Abs(t))
}

// welchDF is the Welch-Satterthwaite degrees of freedom.
func welchDF(a, b []float64) float64 {
	_, varA := stat.MeanVariance(a, nil)
	_, varB := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))
	if len(a) < 2 {
		varA = 0
	}
	if len(b) < 2 {
		varB = 0
	}
	ra, rb := varA/na, varB/nb
	if ra+rb == 0 {
		return na + nb - 2
	}
	denom := 0.0
	if na > 1 {
		denom += ra * ra / (na - 1)
	}
	if nb > 1 {
		denom += rb * rb / (nb - 1)
	}
	if denom == 0 {
		return na + nb - 2
	}
	return (ra + rb) * (ra + rb) / denom
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
