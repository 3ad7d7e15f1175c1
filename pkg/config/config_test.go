// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
tests:
  - name: payload-scale
    metadata:
      platform: AWS
      masterNodesType: m6a.xlarge
      workerNodesCount: 24
      benchmark.keyword: cluster-density-v2
      ocpVersion: "{{ .version }}"
      not:
        network_type: OVNKubernetes
    metrics:
      - name: podReadyLatency
        metricName: podLatencyQuantilesMeasurement
        quantileName: Ready
        metric_of_interest: P99
        direction: 1
        threshold: 10
      - name: apiserverCPU
        metricName: containerCPU
        labels.namespace.keyword: openshift-kube-apiserver
        metric_of_interest: value
        agg:
          value: cpu
          agg_type: avg
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", sampleConfig)

	cfg, err := Load(path, map[string]string{"version": "4.17"})
	require.NoError(t, err)
	require.Len(t, cfg.Tests, 1)

	test := cfg.Tests[0]
	assert.Equal(t, "payload-scale", test.Name)
	assert.Equal(t, DefaultVersionField, test.VersionField)
	assert.Equal(t, DefaultUUIDField, test.UUIDField)
	assert.Equal(t, DefaultTimestampField, test.TimestampField)

	version, ok := test.Metadata.Get("ocpVersion")
	require.True(t, ok)
	assert.Equal(t, "4.17", version)

	require.Len(t, test.Metrics, 2)
	latency := test.Metrics[0]
	assert.Equal(t, "podReadyLatency_P99", latency.ColumnName())
	assert.Equal(t, 1, latency.Direction)
	require.NotNil(t, latency.Threshold)
	assert.Equal(t, 10, *latency.Threshold)
	assert.Equal(t, DefaultContext, latency.Context)
	assert.Len(t, latency.Selector, 2)

	cpu := test.Metrics[1]
	assert.Equal(t, "apiserverCPU_avg", cpu.ColumnName())
	require.NotNil(t, cpu.Agg)
	assert.Equal(t, "cpu", cpu.Agg.Value)
}

func TestLoadConfigMissingVariable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", sampleConfig)

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing template variable")
}

func TestMetadataReservedKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
tests:
  - name: major-version
    metadata:
      benchmark.keyword: node-density
      ocpMajorVersion: "4.17"
      ocpVersion: "4.17.3"
      not:
        jobType: pull
    metrics:
      - name: cpu
        metric_of_interest: value
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	meta := cfg.Tests[0].Metadata
	assert.True(t, meta.HasMajorVersion())

	kinds := map[string]MatchKind{}
	for _, e := range meta.Entries {
		kinds[e.Field] = e.Kind
	}
	assert.Equal(t, MatchWildcard, kinds[MajorVersionKey])
	assert.Equal(t, MatchNot, kinds["jobType"])
	assert.Equal(t, MatchExact, kinds["benchmark.keyword"])
}

func TestMetadataSetDelete(t *testing.T) {
	meta := Metadata{}
	meta.Set("jobType", "pull")
	meta.Set("pullNumber", "123")
	meta.Set("jobType", "periodic")

	v, ok := meta.Get("jobType")
	require.True(t, ok)
	assert.Equal(t, "periodic", v)

	meta.Delete("pullNumber")
	_, ok = meta.Get("pullNumber")
	assert.False(t, ok)
}

func TestParentConfigInheritance(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "parent.yaml", `
name: base
benchmark_index: ripsaw-kube-burner*
threshold: 5
metadata:
  platform: AWS
metrics:
  - name: etcdCPU
    metric_of_interest: value
`)
	path := writeFile(t, dir, "config.yaml", `
tests:
  - name: child
    parentConfig: parent.yaml
    metadata:
      platform: GCP
      benchmark.keyword: node-density
    metrics:
      - name: podReadyLatency
        metric_of_interest: P99
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	test := cfg.Tests[0]
	assert.Equal(t, "ripsaw-kube-burner*", test.BenchmarkIndex)
	assert.Equal(t, 5, test.Threshold)

	// child key wins
	platform, _ := test.Metadata.Get("platform")
	assert.Equal(t, "GCP", platform)

	// parent metric appended after the child's own
	require.Len(t, test.Metrics, 2)
	assert.Equal(t, "podReadyLatency", test.Metrics[0].Name)
	assert.Equal(t, "etcdCPU", test.Metrics[1].Name)
}

func TestMetricsFileAppendIfAbsent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "metrics.yaml", `
- name: podReadyLatency
  metric_of_interest: P95
- name: ovnCPU
  metric_of_interest: value
`)
	path := writeFile(t, dir, "config.yaml", `
tests:
  - name: with-metrics-file
    metricsFile: metrics.yaml
    metadata:
      platform: AWS
    metrics:
      - name: podReadyLatency
        metric_of_interest: P99
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	test := cfg.Tests[0]
	require.Len(t, test.Metrics, 2)
	// the test's own definition is not replaced
	assert.Equal(t, "podReadyLatency_P99", test.Metrics[0].ColumnName())
	assert.Equal(t, "ovnCPU", test.Metrics[1].Name)
}

func TestAckLoadFilterMerge(t *testing.T) {
	dir := t.TempDir()
	ackPath := writeFile(t, dir, "ack.yaml", `
ack:
  - uuid: run-1
    metric: podReadyLatency_P99
  - uuid: run-2
    metric: apiserverCPU_avg
    version: "4.17"
    test_type: cluster-density-v2
  - uuid: run-3
    metric: etcdCPU_avg
    version: "4.16"
`)
	ack, err := LoadAck(ackPath)
	require.NoError(t, err)
	require.Len(t, ack.Ack, 3)

	filtered := ack.Filter("4.17", "cluster-density-v2")
	require.Len(t, filtered.Ack, 2)
	assert.Equal(t, "run-1", filtered.Ack[0].UUID)
	assert.Equal(t, "run-2", filtered.Ack[1].UUID)

	other := &AckMap{Ack: []AckEntry{
		{UUID: "run-1", Metric: "podReadyLatency_P99"},
		{UUID: "run-9", Metric: "ovnCPU_value"},
	}}
	merged := MergeAcks(filtered, other, nil)
	require.Len(t, merged.Ack, 3)
}

func TestParseLookback(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want time.Duration
	}{
		{"15d", 15 * 24 * time.Hour},
		{"5h", 5 * time.Hour},
		{"2d12h", 2*24*time.Hour + 12*time.Hour},
	} {
		got, err := ParseLookback(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseLookback("12x")
	assert.Error(t, err)
	_, err = ParseLookback("")
	assert.Error(t, err)
}

func TestParseSince(t *testing.T) {
	ts, err := ParseSince("2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, time.January, ts.Month())

	_, err = ParseSince("15-01-2026")
	assert.Error(t, err)
}
