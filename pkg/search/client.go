// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package search is the index client: it resolves metadata fingerprints to
// run identifiers and fetches per-metric values from an
// OpenSearch/Elasticsearch-compatible index.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go"
	"github.com/opensearch-project/opensearch-go/opensearchapi"

	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/errors"
	"github.com/perfscale/driftwatch/pkg/logger/log"
)

const (
	// BogusURL is attached when a document carries neither buildUrl nor build_url.
	BogusURL = "http://bogus-url"

	searchSize     = 10000
	requestTimeout = 30 * time.Second
	poolSize       = 5
	maxRetries     = 3
)

// Config configures one index client.
type Config struct {
	Server       string
	Index        string
	VerifyCerts  bool
	UUIDField    string
	VersionField string
}

// Client owns its transport; it is not shared across concurrent analyses.
type Client struct {
	os           *opensearch.Client
	index        string
	uuidField    string
	versionField string
}

// NewClient builds a client with bounded retry and a small connection pool.
func NewClient(cfg Config) (*Client, error) {
	if cfg.UUIDField == "" {
		cfg.UUIDField = config.DefaultUUIDField
	}
	if cfg.VersionField == "" {
		cfg.VersionField = config.DefaultVersionField
	}
	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:            []string{cfg.Server},
		MaxRetries:           maxRetries,
		EnableRetryOnTimeout: true,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   poolSize,
			ResponseHeaderTimeout: requestTimeout,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: !cfg.VerifyCerts},
		},
	})
	if err != nil {
		return nil, errors.NewError().WithCode(errors.CodeInitializeError).
			WithMessage("failed to initialize opensearch client").WithError(err)
	}
	return &Client{
		os:           osClient,
		index:        cfg.Index,
		uuidField:    cfg.UUIDField,
		versionField: cfg.VersionField,
	}, nil
}

// ForIndex returns a client against another index sharing the transport.
func (c *Client) ForIndex(index string) *Client {
	clone := *c
	clone.index = index
	return &clone
}

// Index returns the index the client currently targets.
func (c *Client) Index() string {
	return c.index
}

// UUIDField returns the configured run-identifier field.
func (c *Client) UUIDField() string {
	return c.uuidField
}

type searchHit struct {
	Source map[string]interface{} `json:"_source"`
	Sort   []interface{}          `json:"sort"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]interface{} `json:"aggregations"`
}

// search runs one query and decodes the response. 404 yields an empty
// response rather than an error, a missing index simply has no runs.
func (c *Client) search(ctx context.Context, body map[string]interface{}) (*searchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewError().WithCode(errors.InternalError).
			WithMessage("failed to marshal search body").WithError(err)
	}
	log.Debugf("executing query against index %s: %s", c.index, payload)

	req := opensearchapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return nil, errors.NewError().WithCode(errors.OpensearchError).
			WithMessagef("search against %s failed", c.index).WithError(err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return &searchResponse{}, nil
	}
	if res.IsError() {
		return nil, errors.NewError().WithCode(errors.OpensearchError).
			WithMessagef("search against %s returned %s", c.index, res.String())
	}
	decoded := &searchResponse{}
	if err := json.NewDecoder(res.Body).Decode(decoded); err != nil {
		return nil, errors.NewError().WithCode(errors.OpensearchError).
			WithMessage("failed to decode search response").WithError(err)
	}
	return decoded, nil
}

// searchAll pages through the result set using the last hit's sort key as
// the continuation cursor. maxRows of 0 means unbounded up to exhaustion.
func (c *Client) searchAll(ctx context.Context, body map[string]interface{}, maxRows int) ([]searchHit, error) {
	var all []searchHit
	var cursor []interface{}
	for {
		if cursor != nil {
			body["search_after"] = cursor
		}
		res, err := c.search(ctx, body)
		if err != nil {
			return nil, err
		}
		hits := res.Hits.Hits
		if len(hits) == 0 {
			break
		}
		all = append(all, hits...)
		if maxRows > 0 && len(all) >= maxRows {
			all = all[:maxRows]
			break
		}
		last := hits[len(hits)-1]
		if len(last.Sort) == 0 {
			break
		}
		cursor = last.Sort
	}
	return all, nil
}
