// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package config loads and models the test configuration document: the
// metadata fingerprints, metric specs, acknowledgement files and the
// time-bound flags that drive an analysis run.
package config

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/perfscale/driftwatch/pkg/errors"
)

const (
	DefaultVersionField   = "ocpVersion"
	DefaultUUIDField      = "uuid"
	DefaultTimestampField = "timestamp"
	DefaultContext        = 5

	// MajorVersionKey is the reserved fingerprint key matched by wildcard.
	MajorVersionKey = "ocpMajorVersion"
	// NotKey is the reserved fingerprint key holding the must-not subtree.
	NotKey = "not"
)

// Config is the root of the rendered configuration document.
type Config struct {
	Tests []Test `yaml:"tests"`
}

// Test declares one fingerprint plus the metrics analyzed for it.
type Test struct {
	Name           string   `yaml:"name"`
	Metadata       Metadata `yaml:"metadata"`
	MetadataIndex  string   `yaml:"metadata_index,omitempty"`
	BenchmarkIndex string   `yaml:"benchmark_index,omitempty"`
	VersionField   string   `yaml:"version_field,omitempty"`
	UUIDField      string   `yaml:"uuid_field,omitempty"`
	TimestampField string   `yaml:"timestamp,omitempty"`
	Threshold      int      `yaml:"threshold,omitempty"`
	Metrics        []Metric `yaml:"metrics"`
	ParentConfig   string   `yaml:"parentConfig,omitempty"`
	MetricsFile    string   `yaml:"metricsFile,omitempty"`
}

// MatchKind classifies how a fingerprint entry is matched against the index.
type MatchKind int

const (
	// MatchExact is a plain match clause.
	MatchExact MatchKind = iota
	// MatchNot is an entry from the reserved "not" subtree, matched as must_not.
	MatchNot
	// MatchWildcard is the reserved major-version entry, matched by prefix wildcard.
	MatchWildcard
)

// MetadataEntry is one fingerprint field. Values are carried as strings;
// the index treats match values as text anyway.
type MetadataEntry struct {
	Field string
	Value string
	Kind  MatchKind
}

// Metadata is the ordered fingerprint of a test. Order is preserved from
// the YAML document so queries are built deterministically.
type Metadata struct {
	Entries []MetadataEntry
}

// UnmarshalYAML decodes the fingerprint keeping document order and folding
// the reserved keys into their match kinds.
func (m *Metadata) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw yaml.MapSlice
	if err := unmarshal(&raw); err != nil {
		return err
	}
	m.Entries = m.Entries[:0]
	for _, item := range raw {
		key, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("metadata key %v is not a string", item.Key)
		}
		switch key {
		case NotKey:
			sub, ok := item.Value.(yaml.MapSlice)
			if !ok {
				return fmt.Errorf("metadata %q must be a mapping", NotKey)
			}
			for _, notItem := range sub {
				notKey, ok := notItem.Key.(string)
				if !ok {
					return fmt.Errorf("metadata %q key %v is not a string", NotKey, notItem.Key)
				}
				m.Entries = append(m.Entries, MetadataEntry{
					Field: notKey,
					Value: stringify(notItem.Value),
					Kind:  MatchNot,
				})
			}
		case MajorVersionKey:
			m.Entries = append(m.Entries, MetadataEntry{
				Field: key,
				Value: stringify(item.Value),
				Kind:  MatchWildcard,
			})
		default:
			m.Entries = append(m.Entries, MetadataEntry{
				Field: key,
				Value: stringify(item.Value),
				Kind:  MatchExact,
			})
		}
	}
	return nil
}

// MarshalYAML renders the fingerprint back into its document form.
func (m Metadata) MarshalYAML() (interface{}, error) {
	out := yaml.MapSlice{}
	var not yaml.MapSlice
	for _, e := range m.Entries {
		if e.Kind == MatchNot {
			not = append(not, yaml.MapItem{Key: e.Field, Value: e.Value})
			continue
		}
		out = append(out, yaml.MapItem{Key: e.Field, Value: e.Value})
	}
	if len(not) > 0 {
		out = append(out, yaml.MapItem{Key: NotKey, Value: not})
	}
	return out, nil
}

// Get returns the value of a non-negated entry.
func (m *Metadata) Get(field string) (string, bool) {
	for _, e := range m.Entries {
		if e.Kind != MatchNot && e.Field == field {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value of a non-negated entry, appending when absent.
func (m *Metadata) Set(field, value string) {
	for i, e := range m.Entries {
		if e.Kind != MatchNot && e.Field == field {
			m.Entries[i].Value = value
			return
		}
	}
	m.Entries = append(m.Entries, MetadataEntry{Field: field, Value: value, Kind: MatchExact})
}

// Delete removes all non-negated entries for field.
func (m *Metadata) Delete(field string) {
	kept := m.Entries[:0]
	for _, e := range m.Entries {
		if e.Kind != MatchNot && e.Field == field {
			continue
		}
		kept = append(kept, e)
	}
	m.Entries = kept
}

// Clone deep-copies the fingerprint.
func (m Metadata) Clone() Metadata {
	entries := make([]MetadataEntry, len(m.Entries))
	copy(entries, m.Entries)
	return Metadata{Entries: entries}
}

// HasMajorVersion reports whether the reserved wildcard entry is present.
func (m *Metadata) HasMajorVersion() bool {
	_, ok := m.Get(MajorVersionKey)
	return ok
}

// Agg selects a bucketed aggregation for a metric.
type Agg struct {
	Value   string `yaml:"value"`
	AggType string `yaml:"agg_type"`
}

// Metric is one metric spec of a test. Keys that are not recognized become
// selector clauses matched against the benchmark index.
type Metric struct {
	Name             string
	MetricOfInterest string
	Agg              *Agg
	Labels           []string
	Direction        int
	Threshold        *int
	TimestampField   string
	Correlation      string
	Context          int

	// Selector holds the remaining keys, matched as must clauses.
	Selector yaml.MapSlice
	// Not holds the metric-level must-not subtree.
	Not yaml.MapSlice
}

// UnmarshalYAML splits the recognized metric keys from the free-form
// selector clauses.
func (mc *Metric) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw yaml.MapSlice
	if err := unmarshal(&raw); err != nil {
		return err
	}
	mc.Context = DefaultContext
	for _, item := range raw {
		key, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("metric key %v is not a string", item.Key)
		}
		switch key {
		case "name":
			mc.Name = stringify(item.Value)
		case "metric_of_interest":
			mc.MetricOfInterest = stringify(item.Value)
		case "agg":
			sub, ok := item.Value.(yaml.MapSlice)
			if !ok {
				return fmt.Errorf("metric %q agg must be a mapping", mc.Name)
			}
			agg := &Agg{}
			for _, aggItem := range sub {
				switch aggItem.Key {
				case "value":
					agg.Value = stringify(aggItem.Value)
				case "agg_type":
					agg.AggType = stringify(aggItem.Value)
				}
			}
			mc.Agg = agg
		case "labels":
			items, ok := item.Value.([]interface{})
			if !ok {
				return fmt.Errorf("metric %q labels must be a sequence", mc.Name)
			}
			for _, label := range items {
				mc.Labels = append(mc.Labels, stringify(label))
			}
		case "direction":
			d, err := toInt(item.Value)
			if err != nil {
				return fmt.Errorf("metric %q direction: %v", mc.Name, err)
			}
			mc.Direction = d
		case "threshold":
			t, err := toInt(item.Value)
			if err != nil {
				return fmt.Errorf("metric %q threshold: %v", mc.Name, err)
			}
			if t < 0 {
				t = -t
			}
			mc.Threshold = &t
		case "timestamp":
			mc.TimestampField = stringify(item.Value)
		case "correlation":
			mc.Correlation = stringify(item.Value)
		case "context":
			c, err := toInt(item.Value)
			if err != nil {
				return fmt.Errorf("metric %q context: %v", mc.Name, err)
			}
			mc.Context = c
		case NotKey:
			sub, ok := item.Value.(yaml.MapSlice)
			if !ok {
				return fmt.Errorf("metric %q not must be a mapping", mc.Name)
			}
			mc.Not = sub
		default:
			mc.Selector = append(mc.Selector, item)
		}
	}
	if mc.Name == "" {
		return errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessage("metric is missing a name")
	}
	if mc.MetricOfInterest == "" {
		return errors.NewError().WithCode(errors.CodeLackOfConfig).
			WithMessagef("metric %s is missing metric_of_interest", mc.Name)
	}
	return nil
}

// ColumnName is the stable identifier of the metric across the pipeline.
func (mc *Metric) ColumnName() string {
	if mc.Agg != nil {
		return mc.Name + "_" + mc.Agg.AggType
	}
	return mc.Name + "_" + mc.MetricOfInterest
}

// EffectiveThreshold falls back to the test-level threshold when the metric
// does not carry its own.
func (mc *Metric) EffectiveThreshold(testThreshold int) int {
	if mc.Threshold != nil {
		return *mc.Threshold
	}
	if testThreshold < 0 {
		return -testThreshold
	}
	return testThreshold
}

// EffectiveTimestampField falls back to the test-level timestamp field.
func (mc *Metric) EffectiveTimestampField(testField string) string {
	if mc.TimestampField != "" {
		return mc.TimestampField
	}
	return testField
}

// Clone deep-copies the metric spec.
func (mc Metric) Clone() Metric {
	out := mc
	if mc.Agg != nil {
		agg := *mc.Agg
		out.Agg = &agg
	}
	if mc.Threshold != nil {
		t := *mc.Threshold
		out.Threshold = &t
	}
	out.Labels = append([]string(nil), mc.Labels...)
	out.Selector = append(yaml.MapSlice(nil), mc.Selector...)
	out.Not = append(yaml.MapSlice(nil), mc.Not...)
	return out
}

// ApplyDefaults fills the per-test defaults.
func (t *Test) ApplyDefaults() {
	if t.VersionField == "" {
		t.VersionField = DefaultVersionField
	}
	if t.UUIDField == "" {
		t.UUIDField = DefaultUUIDField
	}
	if t.TimestampField == "" {
		t.TimestampField = DefaultTimestampField
	}
}

// Clone deep-copies the test, used when deriving the periodic variant.
func (t Test) Clone() Test {
	out := t
	out.Metadata = t.Metadata.Clone()
	out.Metrics = make([]Metric, len(t.Metrics))
	for i, mc := range t.Metrics {
		out.Metrics[i] = mc.Clone()
	}
	return out
}

// MetricByColumn finds the metric spec owning a column name.
func (t *Test) MetricByColumn(column string) (*Metric, bool) {
	for i := range t.Metrics {
		if t.Metrics[i].ColumnName() == column {
			return &t.Metrics[i], true
		}
	}
	return nil, false
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toInt(v interface{}) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		return strconv.Atoi(val)
	}
	return 0, fmt.Errorf("value %v is not an integer", v)
}
