// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// FormatText renders the records as one combined table: time, run
// identifier, version, every metric column, then the requested display
// columns. Decorated cells carry the changepoint marker.
func FormatText(w io.Writer, records []Record, columns, displayColumns []string, uuidField, versionField string) {
	headers := []string{"time", uuidField, versionField}
	headers = append(headers, columns...)
	headers = append(headers, displayColumns...)

	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for _, record := range records {
		row := []string{
			time.Unix(record.Timestamp, 0).UTC().Format("2006-01-02 15:04:05 +0000"),
			record.UUID,
			record.Version,
		}
		for _, column := range columns {
			row = append(row, formatCell(record.Metrics[column]))
		}
		for _, column := range displayColumns {
			value, ok := record.Display[column]
			if !ok {
				value = "N/A"
			}
			row = append(row, value)
		}
		table.Append(row)
	}
	table.Render()
}

func formatCell(cell *MetricCell) string {
	if cell == nil || cell.Value == nil {
		return "N/A"
	}
	value := strconv.FormatFloat(*cell.Value, 'f', -1, 64)
	if cell.PercentageChange != 0 {
		return fmt.Sprintf("%s -- changepoint (%+.2f%%)", value, cell.PercentageChange)
	}
	return value
}
