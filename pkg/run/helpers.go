// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package run

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/perfscale/driftwatch/pkg/config"
)

// metadataWhitelist lists the document fields a pinned run contributes to
// the derived fingerprint, in query order.
var metadataWhitelist = []string{
	"platform",
	"clusterType",
	"masterNodesCount",
	"workerNodesCount",
	"infraNodesCount",
	"masterNodesType",
	"workerNodesType",
	"infraNodesType",
	"totalNodesCount",
	"networkType",
	"ipsec",
	"fips",
	"encrypted",
	"publish",
	"computeArch",
	"controlPlaneArch",
}

// periodicVariant derives the periodic counterpart of a pull-request test:
// same fingerprint, but matching the merged nightly jobs instead of the
// pull request's own runs.
func periodicVariant(test config.Test) config.Test {
	periodic := test.Clone()
	periodic.Metadata.Set("jobType", periodicJobType)
	periodic.Metadata.Set("pullNumber", "0")
	periodic.Metadata.Delete("organization")
	periodic.Metadata.Delete("repository")
	return periodic
}

// metadataFromDocument builds a fingerprint from a pinned run's stored
// document, keeping only the whitelisted cluster-shape fields plus the
// version and benchmark. Empty and zero values are dropped so absent
// fields don't turn into match clauses.
func metadataFromDocument(document map[string]interface{}, versionField string) config.Metadata {
	meta := config.Metadata{}
	for _, field := range metadataWhitelist {
		if value, ok := documentValue(document, field); ok {
			meta.Set(field, value)
		}
	}
	if value, ok := documentValue(document, versionField); ok {
		meta.Set(versionField, value)
	}
	if value, ok := documentValue(document, "benchmark"); ok {
		// the benchmark field is analyzed text in most mappings
		meta.Set("benchmark.keyword", value)
	}
	return meta
}

// documentValue stringifies a document field, reporting false for values
// the fingerprint should not match on.
func documentValue(document map[string]interface{}, field string) (string, bool) {
	raw, ok := document[field]
	if !ok || raw == nil {
		return "", false
	}
	var value string
	switch v := raw.(type) {
	case string:
		value = v
	case bool:
		value = strconv.FormatBool(v)
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "", false
	}
	if value == "" || value == "0" || value == "false" {
		return "", false
	}
	return value, true
}

// splitBaseline parses the baseline override, a list of run identifiers
// separated by spaces, commas or pipes.
func splitBaseline(baseline string) []string {
	fields := strings.FieldsFunc(baseline, func(r rune) bool {
		return r == ' ' || r == ',' || r == '|'
	})
	uuids := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			uuids = append(uuids, trimmed)
		}
	}
	return uuids
}

// shouldJobFilter decides whether the kube-burner job filter applies.
// Only fingerprints that name a benchmark are candidates. Fingerprints
// already pinned to a job config, benchmarks whose scale is not
// iteration-driven, explicit baselines and node-count comparisons skip
// it.
func shouldJobFilter(meta config.Metadata, benchmarkIndex, baseline string, nodeCount bool) bool {
	if _, ok := meta.Get("jobConfig.name"); ok {
		return false
	}
	benchmark, ok := meta.Get("benchmark.keyword")
	if !ok {
		return false
	}
	if benchmark == "ingress-perf" || benchmark == "k8s-netperf" {
		return false
	}
	return baseline == "" && !nodeCount && strings.Contains(benchmarkIndex, "kube-burner")
}

// pullTitle is the display header of a pull-flavor output, carrying the
// pull-request number when the fingerprint has one.
func pullTitle(test *config.Test) string {
	if number, ok := test.Metadata.Get("pullNumber"); ok && number != "" && number != "0" {
		return fmt.Sprintf("%s | Pull Request #%s", test.Name, number)
	}
	return test.Name
}

// sideDataPath derives the per-test dataset artifact path from the
// configured base path.
func sideDataPath(base, testName string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + testName + ".csv"
}

// prowArtifactPath derives the per-test machine-readable artifact written
// alongside non-JSON output under prow.
func prowArtifactPath(base, testName string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_" + testName + ".json"
}

// OutputPath derives the per-test output file from the configured base
// path and the rendering format.
func OutputPath(base, testKey, format string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	switch format {
	case FormatJSON:
		ext = ".json"
	case FormatJUnit:
		ext = ".xml"
	case FormatText:
		ext = ".txt"
	}
	return stem + "_" + testKey + ext
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
