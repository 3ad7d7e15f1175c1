// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package dataset assembles the per-metric result sets fetched from the
// index into one aligned table keyed by run identifier and sorted by time.
package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/logger/log"
	"github.com/perfscale/driftwatch/pkg/search"
)

// Row is one run in the assembled table. Metric cells are nullable: the
// outer join keeps runs that miss values for some metrics.
type Row struct {
	UUID      string
	Timestamp int64
	Version   string
	BuildURL  string
	PRs       []string
	Metrics   map[string]*float64
	Display   map[string]string
}

// Table is the assembled dataset fed to the change-point engine. It is
// immutable once built; the adaptive-expansion path builds a new one.
type Table struct {
	UUIDField string
	// Columns is the metric column order, following the test's metric list.
	Columns []string
	// DisplayColumns lists the extra metadata columns carried through.
	DisplayColumns []string
	Rows           []Row
}

// Len returns the row count.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table holds no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// IndexOf finds the row position of a run identifier.
func (t *Table) IndexOf(uuid string) (int, bool) {
	for i := range t.Rows {
		if t.Rows[i].UUID == uuid {
			return i, true
		}
	}
	return 0, false
}

// Frame is one metric's two-column result set before joining.
type Frame struct {
	Column  string
	Samples []search.MetricSample
}

// MetricSource is the index-client surface the assembler consumes.
type MetricSource interface {
	MetricValues(ctx context.Context, uuids []string, metric *config.Metric, timestampField string) ([]search.MetricSample, error)
	AggregatedMetricValues(ctx context.Context, uuids []string, metric *config.Metric, timestampField string) ([]search.MetricSample, error)
}

// BuildFrames fetches one frame per metric spec, choosing aggregated or
// standard retrieval, and returns the per-column metric specs alongside.
// A metric that fails to fetch is skipped, the rest of the test proceeds.
func BuildFrames(ctx context.Context, src MetricSource, test *config.Test, uuids []string) ([]Frame, map[string]*config.Metric, error) {
	frames := make([]Frame, 0, len(test.Metrics))
	specs := map[string]*config.Metric{}
	for i := range test.Metrics {
		metric := &test.Metrics[i]
		column := metric.ColumnName()
		timestampField := metric.EffectiveTimestampField(test.TimestampField)
		log.Infof("collecting %s", metric.Name)

		var samples []search.MetricSample
		var err error
		if metric.Agg != nil {
			samples, err = src.AggregatedMetricValues(ctx, uuids, metric, timestampField)
		} else {
			samples, err = src.MetricValues(ctx, uuids, metric, timestampField)
		}
		if err != nil {
			log.Errorf("couldn't get metric %s: %v", metric.Name, err)
			continue
		}
		frames = append(frames, Frame{Column: column, Samples: samples})
		specs[column] = metric
	}
	return frames, specs, nil
}

// AssembleOptions carries the run-level context attached during the join.
type AssembleOptions struct {
	UUIDField string
	// Runs supplies version, build URL and display fields per run.
	Runs []search.RunDescriptor
	// DisplayFields orders the extra metadata columns as requested.
	DisplayFields []string
	// PRs optionally attaches pull-request URLs per run.
	PRs map[string][]string
	// Shorten, when set, rewrites build URLs (tinyurl conversion).
	Shorten func(string) string
}

// Assemble outer-joins the frames on the run identifier, collapses
// per-metric timestamps by first-non-null, attaches run context, and sorts
// ascending by time. A join with zero rows yields nil: the caller reports
// the test as having no data.
func Assemble(frames []Frame, opts AssembleOptions) *Table {
	if len(frames) == 0 {
		return nil
	}
	uuidField := opts.UUIDField
	if uuidField == "" {
		uuidField = config.DefaultUUIDField
	}

	type cell struct {
		value *float64
		ts    int64
		tsSet bool
	}
	cells := map[string]map[string]cell{}
	var order []string
	for _, frame := range frames {
		for _, sample := range frame.Samples {
			byColumn, ok := cells[sample.UUID]
			if !ok {
				byColumn = map[string]cell{}
				cells[sample.UUID] = byColumn
				order = append(order, sample.UUID)
			}
			if _, exists := byColumn[frame.Column]; exists {
				continue
			}
			byColumn[frame.Column] = cell{value: sample.Value, ts: sample.Timestamp, tsSet: sample.Timestamp != 0}
		}
	}
	if len(order) == 0 {
		return nil
	}

	runContext := map[string]search.RunDescriptor{}
	for _, run := range opts.Runs {
		runContext[run.UUID] = run
	}

	columns := make([]string, len(frames))
	for i, frame := range frames {
		columns[i] = frame.Column
	}
	var displayColumns []string
	if len(opts.Runs) > 0 {
		for _, field := range opts.DisplayFields {
			if _, ok := opts.Runs[0].Display[field]; ok {
				displayColumns = append(displayColumns, field)
			}
		}
	}

	rows := make([]Row, 0, len(order))
	for _, uuid := range order {
		row := Row{
			UUID:     uuid,
			BuildURL: search.BogusURL,
			Metrics:  map[string]*float64{},
		}
		byColumn := cells[uuid]
		for _, column := range columns {
			c, ok := byColumn[column]
			if !ok {
				row.Metrics[column] = nil
				continue
			}
			row.Metrics[column] = c.value
			// first-non-null timestamp in frame order wins
			if row.Timestamp == 0 && c.tsSet {
				row.Timestamp = c.ts
			}
		}
		if run, ok := runContext[uuid]; ok {
			row.Version = run.Version
			row.BuildURL = run.BuildURL
			row.Display = run.Display
		}
		if opts.Shorten != nil {
			row.BuildURL = opts.Shorten(row.BuildURL)
		}
		if opts.PRs != nil {
			row.PRs = opts.PRs[uuid]
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp < rows[j].Timestamp
		}
		return rows[i].UUID < rows[j].UUID
	})

	return &Table{
		UUIDField:      uuidField,
		Columns:        columns,
		DisplayColumns: displayColumns,
		Rows:           rows,
	}
}

// Average collapses the whole table into a single mean row. Numeric cells
// average over their non-null values; per-run context does not survive
// the fold.
func (t *Table) Average() *Table {
	row := Row{UUID: "Average", Metrics: map[string]*float64{}}
	var tsTotal int64
	for _, r := range t.Rows {
		tsTotal += r.Timestamp
	}
	if t.Len() > 0 {
		row.Timestamp = tsTotal / int64(t.Len())
	}
	for _, column := range t.Columns {
		total := 0.0
		count := 0
		for _, r := range t.Rows {
			if v := r.Metrics[column]; v != nil {
				total += *v
				count++
			}
		}
		if count == 0 {
			row.Metrics[column] = nil
			continue
		}
		mean := total / float64(count)
		row.Metrics[column] = &mean
	}
	return &Table{
		UUIDField: t.UUIDField,
		Columns:   t.Columns,
		Rows:      []Row{row},
	}
}

// WriteCSV renders the table for the side-output artifact.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	header := []string{t.UUIDField, "timestamp", "version", "buildUrl"}
	header = append(header, t.Columns...)
	header = append(header, t.DisplayColumns...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := []string{
			row.UUID,
			search.FormatTimestamp(row.Timestamp),
			row.Version,
			row.BuildURL,
		}
		for _, column := range t.Columns {
			v := row.Metrics[column]
			if v == nil {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(*v, 'f', -1, 64))
		}
		for _, column := range t.DisplayColumns {
			record = append(record, row.Display[column])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// MetricSeries extracts one metric column as parallel position and value
// slices, skipping null cells. The returned index map translates series
// positions back to table row indices.
func (t *Table) MetricSeries(column string) (values []float64, rowIndex []int) {
	for i := range t.Rows {
		v := t.Rows[i].Metrics[column]
		if v == nil {
			continue
		}
		values = append(values, *v)
		rowIndex = append(rowIndex, i)
	}
	return values, rowIndex
}
