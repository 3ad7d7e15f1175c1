// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package analyze

import (
	"math"
	"strconv"

	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/dataset"
)

const (
	// DefaultEarlyWindow marks change points near the start of the series
	// as boundary-suspect, triggering the look-back expansion retry.
	DefaultEarlyWindow = 5
	// DefaultMinFuture is the number of rows a change point needs after it
	// to be trusted as settled rather than a boundary artifact.
	DefaultMinFuture = 5
)

// FilterOptions carries the filter inputs that live outside the metric
// specs.
type FilterOptions struct {
	// TestThreshold is the test-level percentage floor metrics without
	// their own threshold fall back to.
	TestThreshold int
	// Acks lists acknowledged regressions to silence.
	Acks []config.AckEntry
}

// Filter discards change points that contradict the metric direction, are
// acknowledged, or fall under the percentage threshold, then enforces
// correlation requirements against the surviving candidates. It never
// fails; a candidate that cannot pass is dropped, and Regression is set
// from what remains.
func Filter(result *Result, specs map[string]*config.Metric, opts FilterOptions) {
	ackSet := buildAckSet(result.Table, opts.Acks)
	points := result.ChangePoints
	for _, metric := range result.Table.Columns {
		spec := specs[metric]
		if spec == nil {
			continue
		}
		list := points[metric]
		for i := len(list) - 1; i >= 0; i-- {
			if discard(spec, opts.TestThreshold, ackSet, list[i]) {
				list = append(list[:i], list[i+1:]...)
				continue
			}
			if spec.Correlation != "" &&
				!correlatedSupport(points, specs, opts.TestThreshold, ackSet, spec, list[i].Index) {
				list = append(list[:i], list[i+1:]...)
			}
		}
		points[metric] = list
	}

	result.Regression = false
	for _, list := range points {
		if len(list) > 0 {
			result.Regression = true
			break
		}
	}
}

// correlatedSupport looks for a candidate of the correlated metric within
// the context window around index that itself passes the primitive
// filters. The nearest in-window candidate decides.
func correlatedSupport(
	points map[string][]ChangePoint,
	specs map[string]*config.Metric,
	testThreshold int,
	ackSet map[string]bool,
	spec *config.Metric,
	index int,
) bool {
	list, ok := points[spec.Correlation]
	if !ok {
		return false
	}
	depSpec := specs[spec.Correlation]
	if depSpec == nil {
		return false
	}
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Index >= index-spec.Context && list[i].Index <= index+spec.Context {
			return !discard(depSpec, testThreshold, ackSet, list[i])
		}
	}
	return false
}

func discard(spec *config.Metric, testThreshold int, ackSet map[string]bool, cp ChangePoint) bool {
	return wrongDirection(spec.Direction, cp.Stats) ||
		acked(ackSet, cp) ||
		underThreshold(spec.EffectiveThreshold(testThreshold), cp.Stats)
}

// wrongDirection drops shifts that move the metric the healthy way.
func wrongDirection(direction int, s ComparativeStats) bool {
	return (direction == 1 && s.MeanBefore > s.MeanAfter) ||
		(direction == -1 && s.MeanBefore < s.MeanAfter)
}

func underThreshold(threshold int, s ComparativeStats) bool {
	if s.MeanBefore == 0 {
		return false
	}
	return float64(threshold) > math.Abs((s.MeanBefore-s.MeanAfter)/s.MeanBefore)*100
}

func acked(ackSet map[string]bool, cp ChangePoint) bool {
	return ackSet[strconv.Itoa(cp.Index)+"_"+cp.Metric]
}

// buildAckSet resolves acknowledged run identifiers to row positions so
// candidates can be matched by index and metric.
func buildAckSet(table *dataset.Table, acks []config.AckEntry) map[string]bool {
	set := map[string]bool{}
	for _, ack := range acks {
		if index, ok := table.IndexOf(ack.UUID); ok {
			set[strconv.Itoa(index)+"_"+ack.Metric] = true
		}
	}
	return set
}

// HasEarlyChangePoint reports whether any surviving change point sits
// within the first early rows. Such points may be artifacts of the
// look-back boundary and warrant a widened retry.
func HasEarlyChangePoint(points map[string][]ChangePoint, early int) bool {
	for _, list := range points {
		for _, cp := range list {
			if cp.Index < early {
				return true
			}
		}
	}
	return false
}

// DropEarly removes change points within the first early rows, used when
// a widened retry could not confirm a boundary-suspect shift.
func DropEarly(points map[string][]ChangePoint, early int) {
	for metric, list := range points {
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].Index < early {
				list = append(list[:i], list[i+1:]...)
			}
		}
		points[metric] = list
	}
}

// DropShortFuture removes change points with fewer than minFuture rows
// after them; a shift that new data may still revert is not reported.
func DropShortFuture(points map[string][]ChangePoint, rowCount, minFuture int) {
	for metric, list := range points {
		for i := len(list) - 1; i >= 0; i-- {
			if rowCount-1-list[i].Index < minFuture {
				list = append(list[:i], list[i+1:]...)
			}
		}
		points[metric] = list
	}
}

// Count totals the change points across metrics.
func Count(points map[string][]ChangePoint) int {
	total := 0
	for _, list := range points {
		total += len(list)
	}
	return total
}
