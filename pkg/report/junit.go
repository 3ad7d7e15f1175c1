// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package report

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/perfscale/driftwatch/pkg/config"
)

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Failures int             `xml:"failures,attr"`
	Tests    int             `xml:"tests,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	Timestamp string        `xml:"timestamp,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Text string `xml:",chardata"`
}

// FormatJUnit renders one testcase per metric. A metric with any decorated
// change point fails, embedding its per-metric table in the failure body.
func FormatJUnit(testName string, records []Record, specs map[string]*config.Metric, columns []string, uuidField string) (string, error) {
	suite := junitTestSuite{Name: testName + " nightly compare"}
	now := strconv.FormatInt(time.Now().Unix(), 10)

	for _, column := range columns {
		spec := specs[column]
		if spec == nil {
			continue
		}
		suite.Tests++
		testcase := junitTestCase{
			Name:      fmt.Sprintf("%s %s regression detection", strings.Join(spec.Labels, " "), column),
			Timestamp: now,
		}
		if metricRegressed(records, column) {
			suite.Failures++
			testcase.Failure = &junitFailure{
				Text: "\n" + metricTable(records, column, uuidField) + "\n",
			}
		}
		suite.Cases = append(suite.Cases, testcase)
	}

	out, err := xml.MarshalIndent(junitTestSuites{Suites: []junitTestSuite{suite}}, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}

func metricRegressed(records []Record, column string) bool {
	for _, record := range records {
		if cell := record.Metrics[column]; cell != nil && cell.PercentageChange != 0 {
			return true
		}
	}
	return false
}

// metricTable renders one metric across all runs, with the changepoint
// marker appended to decorated rows.
func metricTable(records []Record, column, uuidField string) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{uuidField, "timestamp", "buildUrl", column, "is_changepoint", "percentage_change"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	var changed []bool
	seen := map[string]bool{}
	for _, record := range records {
		cell := record.Metrics[column]
		if cell == nil {
			continue
		}
		value := "N/A"
		if cell.Value != nil {
			value = strconv.FormatFloat(*cell.Value, 'f', -1, 64)
		}
		row := []string{
			record.UUID,
			time.Unix(record.Timestamp, 0).UTC().Format("2006-01-02T15:04:05Z"),
			record.BuildURL,
			value,
			strconv.FormatBool(cell.PercentageChange != 0),
			strconv.FormatFloat(cell.PercentageChange, 'f', -1, 64),
		}
		key := strings.Join(row, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		table.Append(row)
		changed = append(changed, cell.PercentageChange != 0)
	}
	table.Render()

	// rows start after the top border, header and separator
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for i, isChanged := range changed {
		if isChanged && 3+i < len(lines) {
			lines[3+i] += " -- changepoint"
		}
	}
	return strings.Join(lines, "\n")
}
