// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package search

import (
	"context"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/logger/log"
)

// RunDescriptor identifies one benchmark run found by a fingerprint lookup.
type RunDescriptor struct {
	UUID     string
	Version  string
	BuildURL string
	// Display carries the extra metadata columns requested via LookupOptions.
	Display map[string]string
}

// LookupOptions bounds a fingerprint lookup.
type LookupOptions struct {
	LookbackStart  *time.Time
	LookbackEnd    *time.Time
	MaxRows        int
	TimestampField string
	DisplayFields  []string
}

// Lookup resolves a metadata fingerprint to the runs matching it, newest
// first. Every fingerprint entry except the version fields becomes a match
// clause; the version is matched by major-version prefix wildcard.
func (c *Client) Lookup(ctx context.Context, meta config.Metadata, opts LookupOptions) ([]RunDescriptor, error) {
	timestampField := opts.TimestampField
	if timestampField == "" {
		timestampField = config.DefaultTimestampField
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = searchSize
	}

	var must []interface{}
	var mustNot []interface{}
	for _, e := range meta.Entries {
		switch {
		case e.Kind == config.MatchNot:
			mustNot = append(mustNot, matchClause(e.Field, e.Value))
		case e.Field == c.versionField || e.Field == config.MajorVersionKey:
			// version fields feed the wildcard filter below
		default:
			must = append(must, matchClause(e.Field, e.Value))
		}
	}

	filter := []interface{}{versionWildcard(meta, c.versionField)}
	if rangeClause := timestampRange(timestampField, opts.LookbackStart, opts.LookbackEnd); rangeClause != nil {
		filter = append(filter, rangeClause)
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":     must,
				"must_not": mustNot,
				"filter":   filter,
			},
		},
		"size": maxRows,
		"sort": []interface{}{
			map[string]interface{}{timestampField: map[string]interface{}{"order": "desc"}},
		},
	}

	hits, err := c.searchAll(ctx, body, maxRows)
	if err != nil {
		return nil, err
	}

	runs := make([]RunDescriptor, 0, len(hits))
	for _, hit := range hits {
		uuid, ok := ExtractString(hit.Source, c.uuidField)
		if !ok {
			continue
		}
		run := RunDescriptor{UUID: uuid, BuildURL: BogusURL}
		if version, ok := ExtractString(hit.Source, c.versionField); ok {
			run.Version = version
		}
		if url, ok := ExtractString(hit.Source, "buildUrl"); ok {
			run.BuildURL = url
		} else if url, ok := ExtractString(hit.Source, "build_url"); ok {
			run.BuildURL = url
		}
		if len(opts.DisplayFields) > 0 {
			run.Display = map[string]string{}
			for _, field := range opts.DisplayFields {
				if v, ok := ExtractString(hit.Source, field); ok {
					run.Display[field] = v
				} else {
					run.Display[field] = "N/A"
				}
			}
		}
		runs = append(runs, run)
	}
	log.Debugf("lookup on %s matched %d runs", c.index, len(runs))
	return runs, nil
}

// MetadataByUUID fetches the stored document of a single run.
func (c *Client) MetadataByUUID(ctx context.Context, uuid string) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"query": matchClause(c.uuidField, uuid),
		"size":  1,
	}
	res, err := c.search(ctx, body)
	if err != nil {
		return nil, err
	}
	if len(res.Hits.Hits) == 0 {
		return map[string]interface{}{}, nil
	}
	return res.Hits.Hits[0].Source, nil
}

// Versions maps every run to the value of the version field.
func (c *Client) Versions(ctx context.Context, uuids []string, timestampField string) (map[string]string, error) {
	hits, err := c.termsSearch(ctx, uuids, nil, nil, timestampField)
	if err != nil {
		return nil, err
	}
	versions := map[string]string{}
	for _, hit := range hits {
		uuid, ok := ExtractString(hit.Source, c.uuidField)
		if !ok {
			continue
		}
		if version, ok := ExtractString(hit.Source, c.versionField); ok {
			versions[uuid] = version
		}
	}
	return versions, nil
}

// BuildURLs maps every run to its build URL, with the bogus placeholder for
// runs that carry none.
func (c *Client) BuildURLs(ctx context.Context, uuids []string, timestampField string) (map[string]string, error) {
	hits, err := c.termsSearch(ctx, uuids, nil, nil, timestampField)
	if err != nil {
		return nil, err
	}
	urls := map[string]string{}
	for _, hit := range hits {
		uuid, ok := ExtractString(hit.Source, c.uuidField)
		if !ok {
			continue
		}
		if url, ok := ExtractString(hit.Source, "buildUrl"); ok {
			urls[uuid] = url
		} else if url, ok := ExtractString(hit.Source, "build_url"); ok {
			urls[uuid] = url
		} else {
			urls[uuid] = BogusURL
		}
	}
	return urls, nil
}

// termsSearch runs the uuid-scoped query shared by the metric and metadata
// retrieval paths.
func (c *Client) termsSearch(
	ctx context.Context,
	uuids []string,
	selector yaml.MapSlice,
	not yaml.MapSlice,
	timestampField string,
) ([]searchHit, error) {
	if timestampField == "" {
		timestampField = config.DefaultTimestampField
	}
	var must []interface{}
	for _, item := range selector {
		must = append(must, matchClause(stringifyKey(item.Key), item.Value))
	}
	var mustNot []interface{}
	for _, item := range not {
		mustNot = append(mustNot, matchClause(stringifyKey(item.Key), item.Value))
	}
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					termsClause(c.uuidField+".keyword", uuids),
					map[string]interface{}{
						"bool": map[string]interface{}{
							"must":     must,
							"must_not": mustNot,
						},
					},
				},
			},
		},
		"size": searchSize,
		"sort": []interface{}{
			map[string]interface{}{timestampField: map[string]interface{}{"order": "desc"}},
		},
	}
	return c.searchAll(ctx, body, 0)
}

func matchClause(field string, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"match": map[string]interface{}{field: value},
	}
}

func termsClause(field string, values []string) map[string]interface{} {
	return map[string]interface{}{
		"terms": map[string]interface{}{field: values},
	}
}

// versionWildcard builds the prefix wildcard on the version. The reserved
// major-version entry wins over the first four characters of the full
// version.
func versionWildcard(meta config.Metadata, versionField string) map[string]interface{} {
	if major, ok := meta.Get(config.MajorVersionKey); ok {
		return map[string]interface{}{
			"wildcard": map[string]interface{}{
				config.MajorVersionKey: major + "*",
			},
		}
	}
	version, _ := meta.Get(versionField)
	if len(version) > 4 {
		version = version[:4]
	}
	return map[string]interface{}{
		"wildcard": map[string]interface{}{
			versionField: map[string]interface{}{"value": version + "*"},
		},
	}
}

func timestampRange(timestampField string, start, end *time.Time) map[string]interface{} {
	bounds := map[string]interface{}{}
	if start != nil {
		bounds["gt"] = start.UTC().Format("2006-01-02T15:04:05Z")
	}
	if end != nil {
		bounds["lt"] = end.UTC().Format("2006-01-02T15:04:05Z")
	}
	if len(bounds) == 0 {
		return nil
	}
	return map[string]interface{}{
		"range": map[string]interface{}{timestampField: bounds},
	}
}

func stringifyKey(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return ""
}
