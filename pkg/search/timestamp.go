// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/perfscale/driftwatch/pkg/errors"
)

// millisBoundary separates second from millisecond epoch values. Anything
// above it is treated as milliseconds.
const millisBoundary = int64(1e12)

// NormalizeTimestamp converts a document timestamp into epoch seconds.
// Accepted forms: integer seconds, integer milliseconds, numeric strings of
// either, and ISO-8601 / RFC3339 strings with optional fractional seconds.
func NormalizeTimestamp(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return secondsOf(val), nil
	case int:
		return secondsOf(int64(val)), nil
	case float64:
		return secondsOf(int64(val)), nil
	case string:
		return parseTimestampString(val)
	case time.Time:
		return val.Unix(), nil
	}
	return 0, errors.NewError().WithCode(errors.InvalidDataError).
		WithMessagef("unsupported timestamp value %v", v)
}

func secondsOf(v int64) int64 {
	if v > millisBoundary {
		return v / 1000
	}
	return v
}

func parseTimestampString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.NewError().WithCode(errors.InvalidDataError).
			WithMessage("empty timestamp string")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return secondsOf(n), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return secondsOf(int64(f)), nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, errors.NewError().WithCode(errors.InvalidDataError).
		WithMessagef("cannot parse timestamp %q", s)
}

// FormatTimestamp renders epoch seconds as an ISO-8601 UTC string.
func FormatTimestamp(seconds int64) string {
	return time.Unix(seconds, 0).UTC().Format("2006-01-02T15:04:05Z")
}

// ExtractField resolves a possibly dotted field path against a document
// source. A literal key wins over path traversal so index-style names such
// as "benchmark.keyword" resolve before nesting is attempted.
func ExtractField(source map[string]interface{}, path string) (interface{}, bool) {
	if v, ok := source[path]; ok {
		return v, true
	}
	if strings.HasSuffix(path, ".keyword") {
		if v, ok := source[strings.TrimSuffix(path, ".keyword")]; ok {
			return v, true
		}
	}
	parts := strings.Split(path, ".")
	var current interface{} = source
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ExtractString is ExtractField with string coercion.
func ExtractString(source map[string]interface{}, path string) (string, bool) {
	v, ok := ExtractField(source, path)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}

// ExtractNumber is ExtractField with numeric coercion.
func ExtractNumber(source map[string]interface{}, path string) (float64, bool) {
	v, ok := ExtractField(source, path)
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
