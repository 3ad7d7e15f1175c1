// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/perfscale/driftwatch/pkg/errors"
	"github.com/perfscale/driftwatch/pkg/logger/log"
)

// AckEntry marks a known, accepted regression: the run and the metric
// column it applies to. Consolidated ack files may additionally scope an
// entry to a version and a test type.
type AckEntry struct {
	UUID     string `yaml:"uuid"`
	Metric   string `yaml:"metric"`
	Version  string `yaml:"version,omitempty"`
	TestType string `yaml:"test_type,omitempty"`
}

// AckMap is the decoded acknowledgement document.
type AckMap struct {
	Ack []AckEntry `yaml:"ack"`
}

// LoadAck reads one acknowledgement file.
func LoadAck(path string) (*AckMap, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("failed to read ack file %s", path).WithError(err)
	}
	m := &AckMap{}
	if err := yaml.Unmarshal(content, m); err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("failed to parse ack file %s", path).WithError(err)
	}
	return m, nil
}

// Filter keeps entries matching the given version and test type. An empty
// filter value or an unscoped entry always matches.
func (m *AckMap) Filter(version, testType string) *AckMap {
	out := &AckMap{}
	for _, e := range m.Ack {
		if version != "" && e.Version != "" && e.Version != version {
			continue
		}
		if testType != "" && e.TestType != "" && e.TestType != testType {
			continue
		}
		out.Ack = append(out.Ack, e)
	}
	return out
}

// MergeAcks unions the entry lists, dropping (uuid, metric) duplicates.
func MergeAcks(maps ...*AckMap) *AckMap {
	out := &AckMap{}
	seen := map[[2]string]bool{}
	for _, m := range maps {
		if m == nil {
			continue
		}
		for _, e := range m.Ack {
			key := [2]string{e.UUID, e.Metric}
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Ack = append(out.Ack, e)
		}
	}
	return out
}

// AutoDetectAckFile looks in ackDir for a consolidated ack file matching the
// first test's version and benchmark. Returns "" when nothing applies.
func AutoDetectAckFile(cfg *Config, ackDir string) string {
	if cfg == nil || len(cfg.Tests) == 0 {
		return ""
	}
	version, testType := cfg.Tests[0].AckScope()
	candidates := []string{}
	if version != "" && testType != "" {
		candidates = append(candidates, filepath.Join(ackDir, version+"_"+testType+"_ack.yaml"))
	}
	if version != "" {
		candidates = append(candidates, filepath.Join(ackDir, version+"_ack.yaml"))
	}
	candidates = append(candidates, filepath.Join(ackDir, "ack.yaml"))
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			log.Debugf("auto-detected ack file %s", candidate)
			return candidate
		}
	}
	return ""
}

// AckScope derives the (version, testType) pair used to filter a
// consolidated ack file for this test.
func (t *Test) AckScope() (version string, testType string) {
	versionField := t.VersionField
	if versionField == "" {
		versionField = DefaultVersionField
	}
	version, _ = t.Metadata.Get(versionField)
	testType, _ = t.Metadata.Get("benchmark.keyword")
	return version, testType
}
