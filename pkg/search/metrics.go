// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package search

import (
	"context"

	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/errors"
	"github.com/perfscale/driftwatch/pkg/logger/log"
)

// MetricSample is one (run, timestamp, value) observation. Value is nil for
// aggregation buckets with no hits.
type MetricSample struct {
	UUID      string
	Timestamp int64
	Value     *float64
}

// MetricValues fetches the raw per-run values of a standard metric. The
// metric's selector clauses scope the query; results deduplicate on the run
// identifier, first hit wins.
func (c *Client) MetricValues(ctx context.Context, uuids []string, metric *config.Metric, timestampField string) ([]MetricSample, error) {
	hits, err := c.termsSearch(ctx, uuids, metric.Selector, metric.Not, timestampField)
	if err != nil {
		return nil, err
	}
	samples := make([]MetricSample, 0, len(hits))
	seen := map[string]bool{}
	for _, hit := range hits {
		uuid, ok := ExtractString(hit.Source, c.uuidField)
		if !ok || seen[uuid] {
			continue
		}
		rawTS, ok := ExtractField(hit.Source, timestampField)
		if !ok {
			continue
		}
		ts, err := NormalizeTimestamp(rawTS)
		if err != nil {
			log.Warnf("run %s has an unusable %s value: %v", uuid, timestampField, err)
			continue
		}
		value, ok := ExtractNumber(hit.Source, metric.MetricOfInterest)
		if !ok {
			continue
		}
		seen[uuid] = true
		samples = append(samples, MetricSample{UUID: uuid, Timestamp: ts, Value: &value})
	}
	return samples, nil
}

// AggregatedMetricValues fetches one aggregated value per run using a
// two-level bucket aggregation: runs bucketed by identifier, the metric
// aggregated inside each bucket, plus an average-of-timestamp bucket for a
// representative timestamp.
func (c *Client) AggregatedMetricValues(ctx context.Context, uuids []string, metric *config.Metric, timestampField string) ([]MetricSample, error) {
	if metric.Agg == nil {
		return nil, errors.NewError().WithCode(errors.InvalidArgument).
			WithMessagef("metric %s has no aggregation", metric.Name)
	}
	if timestampField == "" {
		timestampField = config.DefaultTimestampField
	}

	var must []interface{}
	for _, item := range metric.Selector {
		must = append(must, matchClause(stringifyKey(item.Key), item.Value))
	}
	var mustNot []interface{}
	for _, item := range metric.Not {
		mustNot = append(mustNot, matchClause(stringifyKey(item.Key), item.Value))
	}
	keyword := c.uuidField + ".keyword"
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					termsClause(keyword, uuids),
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
		"aggs": map[string]interface{}{
			"time": map[string]interface{}{
				"terms": map[string]interface{}{"field": keyword, "size": searchSize},
				"aggs": map[string]interface{}{
					"time": map[string]interface{}{
						"avg": map[string]interface{}{"field": timestampField},
					},
				},
			},
			"uuid": map[string]interface{}{
				"terms": map[string]interface{}{"field": keyword, "size": searchSize},
				"aggs": map[string]interface{}{
					metric.Agg.Value: map[string]interface{}{
						metric.Agg.AggType: map[string]interface{}{"field": metric.MetricOfInterest},
					},
				},
			},
		},
	}

	res, err := c.search(ctx, body)
	if err != nil {
		return nil, err
	}
	return parseAggBuckets(res.Aggregations, metric.Agg.Value), nil
}

// parseAggBuckets pairs the timestamp buckets with the metric buckets by
// run identifier. A run with no metric bucket yields a nil value.
func parseAggBuckets(aggs map[string]interface{}, aggValue string) []MetricSample {
	timeBuckets := bucketsOf(aggs, "time")
	metricBuckets := bucketsOf(aggs, "uuid")

	valuesByUUID := map[string]*float64{}
	for _, bucket := range metricBuckets {
		key, ok := bucket["key"].(string)
		if !ok {
			continue
		}
		inner, ok := bucket[aggValue].(map[string]interface{})
		if !ok {
			continue
		}
		if v, ok := inner["value"].(float64); ok {
			value := v
			valuesByUUID[key] = &value
		}
	}

	samples := make([]MetricSample, 0, len(timeBuckets))
	for _, bucket := range timeBuckets {
		key, ok := bucket["key"].(string)
		if !ok {
			continue
		}
		sample := MetricSample{UUID: key, Value: valuesByUUID[key]}
		if inner, ok := bucket["time"].(map[string]interface{}); ok {
			if raw, ok := inner["value_as_string"]; ok {
				if ts, err := NormalizeTimestamp(raw); err == nil {
					sample.Timestamp = ts
				}
			} else if raw, ok := inner["value"]; ok {
				if ts, err := NormalizeTimestamp(raw); err == nil {
					sample.Timestamp = ts
				}
			}
		}
		samples = append(samples, sample)
	}
	return samples
}

func bucketsOf(aggs map[string]interface{}, name string) []map[string]interface{} {
	agg, ok := aggs[name].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := agg["buckets"].([]interface{})
	if !ok {
		return nil
	}
	buckets := make([]map[string]interface{}, 0, len(raw))
	for _, b := range raw {
		if bucket, ok := b.(map[string]interface{}); ok {
			buckets = append(buckets, bucket)
		}
	}
	return buckets
}

// JobFilter keeps the runs whose kube-burner job summary declares the same
// iteration count as the first (most recent) summary document.
func (c *Client) JobFilter(ctx context.Context, uuids []string, timestampField string) ([]string, error) {
	if timestampField == "" {
		timestampField = config.DefaultTimestampField
	}
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					termsClause(c.uuidField+".keyword", uuids),
					matchClause("metricName", "jobSummary"),
				},
				"must_not": []interface{}{
					matchClause("jobConfig.name", "garbage-collection"),
				},
			},
		},
		"size": searchSize,
		"sort": []interface{}{
			map[string]interface{}{timestampField: map[string]interface{}{"order": "desc"}},
		},
	}
	hits, err := c.searchAll(ctx, body, 0)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return uuids, nil
	}

	reference, ok := ExtractNumber(hits[0].Source, "jobConfig.jobIterations")
	if !ok {
		return uuids, nil
	}
	var kept []string
	seen := map[string]bool{}
	for _, hit := range hits {
		uuid, ok := ExtractString(hit.Source, c.uuidField)
		if !ok || seen[uuid] {
			continue
		}
		seen[uuid] = true
		iterations, ok := ExtractNumber(hit.Source, "jobConfig.jobIterations")
		if ok && iterations == reference {
			kept = append(kept, uuid)
		}
	}
	log.Debugf("job filter kept %d of %d runs", len(kept), len(uuids))
	return kept, nil
}
