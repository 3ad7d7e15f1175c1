// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v2"

	"github.com/perfscale/driftwatch/pkg/errors"
	"github.com/perfscale/driftwatch/pkg/logger/log"
)

// TemplateVars merges the process environment (keys lowercased) with the
// explicit input variables; explicit variables win.
func TemplateVars(inputVars map[string]string) map[string]string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		merged[strings.ToLower(parts[0])] = parts[1]
	}
	for k, v := range inputVars {
		merged[k] = v
	}
	return merged
}

// Load reads, template-expands and decodes the configuration document.
// A template variable missing from vars is a configuration error.
func Load(path string, vars map[string]string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("failed to read config %s", path).WithError(err)
	}
	rendered, err := render(filepath.Base(path), string(content), vars)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(rendered, cfg); err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("failed to parse config %s", path).WithError(err)
	}
	for i := range cfg.Tests {
		if err := resolveInheritance(&cfg.Tests[i], filepath.Dir(path), vars); err != nil {
			return nil, err
		}
		cfg.Tests[i].ApplyDefaults()
	}
	log.Debugf("config %s loaded with %d tests", path, len(cfg.Tests))
	return cfg, nil
}

func render(name, content string, vars map[string]string) ([]byte, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("failed to parse template %s", name).WithError(err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("missing template variable in %s, set it via --input-vars or the environment", name).
			WithError(err)
	}
	return buf.Bytes(), nil
}

// resolveInheritance applies parentConfig and metricsFile. The parent file
// holds a single test used as a base; the child wins on every key it sets.
// Metrics-file entries are appended only when the child does not already
// declare a metric of the same name.
func resolveInheritance(t *Test, baseDir string, vars map[string]string) error {
	if t.ParentConfig != "" {
		parent, err := loadTestFile(resolvePath(baseDir, t.ParentConfig), vars)
		if err != nil {
			return err
		}
		mergeParent(t, parent)
	}
	if t.MetricsFile != "" {
		metrics, err := loadMetricsFile(resolvePath(baseDir, t.MetricsFile), vars)
		if err != nil {
			return err
		}
		for _, mc := range metrics {
			if _, exists := findMetric(t.Metrics, mc.Name); !exists {
				t.Metrics = append(t.Metrics, mc)
			}
		}
	}
	return nil
}

func loadTestFile(path string, vars map[string]string) (*Test, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("failed to read parent config %s", path).WithError(err)
	}
	rendered, err := render(filepath.Base(path), string(content), vars)
	if err != nil {
		return nil, err
	}
	parent := &Test{}
	if err := yaml.Unmarshal(rendered, parent); err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("failed to parse parent config %s", path).WithError(err)
	}
	return parent, nil
}

func loadMetricsFile(path string, vars map[string]string) ([]Metric, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("failed to read metrics file %s", path).WithError(err)
	}
	rendered, err := render(filepath.Base(path), string(content), vars)
	if err != nil {
		return nil, err
	}
	var metrics []Metric
	if err := yaml.Unmarshal(rendered, &metrics); err != nil {
		return nil, errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("failed to parse metrics file %s", path).WithError(err)
	}
	return metrics, nil
}

func mergeParent(child *Test, parent *Test) {
	if child.MetadataIndex == "" {
		child.MetadataIndex = parent.MetadataIndex
	}
	if child.BenchmarkIndex == "" {
		child.BenchmarkIndex = parent.BenchmarkIndex
	}
	if child.VersionField == "" {
		child.VersionField = parent.VersionField
	}
	if child.UUIDField == "" {
		child.UUIDField = parent.UUIDField
	}
	if child.TimestampField == "" {
		child.TimestampField = parent.TimestampField
	}
	if child.Threshold == 0 {
		child.Threshold = parent.Threshold
	}
	for _, e := range parent.Metadata.Entries {
		if e.Kind == MatchNot {
			child.Metadata.Entries = append(child.Metadata.Entries, e)
			continue
		}
		if _, exists := child.Metadata.Get(e.Field); !exists {
			child.Metadata.Entries = append(child.Metadata.Entries, e)
		}
	}
	for _, mc := range parent.Metrics {
		if _, exists := findMetric(child.Metrics, mc.Name); !exists {
			child.Metrics = append(child.Metrics, mc)
		}
	}
}

func findMetric(metrics []Metric, name string) (*Metric, bool) {
	for i := range metrics {
		if metrics[i].Name == name {
			return &metrics[i], true
		}
	}
	return nil, false
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
