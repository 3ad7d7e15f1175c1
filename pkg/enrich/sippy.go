// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package enrich

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/perfscale/driftwatch/pkg/errors"
	"github.com/perfscale/driftwatch/pkg/logger/log"
)

const (
	sippyBaseURL = "https://sippy.dptools.openshift.org"
	sippyTimeout = 30 * time.Second
)

// SippyClient resolves release payload tags to the pull requests they
// carry. Lookups are cached because every run of a version asks the same
// question.
type SippyClient struct {
	baseURL    string
	httpClient *resty.Client
	cache      *gocache.Cache
}

// NewSippyClient builds a client over the public sippy endpoint.
func NewSippyClient() *SippyClient {
	return NewSippyClientWithBaseURL(sippyBaseURL)
}

// NewSippyClientWithBaseURL builds a client against a custom endpoint.
func NewSippyClientWithBaseURL(baseURL string) *SippyClient {
	return &SippyClient{
		baseURL:    baseURL,
		httpClient: resty.New().SetTimeout(sippyTimeout),
		cache:      gocache.New(cacheExpiration, cacheCleanup),
	}
}

type sippyPullRequest struct {
	URL string `json:"url"`
}

// PullRequests lists the PR URLs attached to a release payload tag. A
// failed lookup yields an empty list.
func (c *SippyClient) PullRequests(ctx context.Context, version string) []string {
	if cached, ok := c.cache.Get("search/" + version); ok {
		return cached.([]string)
	}

	filter, _ := json.Marshal(map[string]interface{}{
		"items": []map[string]string{{
			"columnField":   "release_tag",
			"operatorValue": "equals",
			"value":         version,
		}},
	})

	payload, err := c.fetch(ctx, "/api/releases/pull_requests", map[string]string{
		"filter":    string(filter),
		"sortField": "pull_request_id",
		"sort":      "asc",
	})
	if err != nil {
		log.Errorf("failed to search for PRs in sippy for version %s: %v", version, err)
		return nil
	}

	urls := pullRequestURLs(payload)
	c.cache.Set("search/"+version, urls, gocache.DefaultExpiration)
	return urls
}

// PayloadDiff lists the PR URLs landed between two release payloads.
func (c *SippyClient) PayloadDiff(ctx context.Context, baseVersion, newVersion string) []string {
	payload, err := c.fetch(ctx, "/api/payloads/diff", map[string]string{
		"fromPayload": baseVersion,
		"toPayload":   newVersion,
	})
	if err != nil {
		log.Errorf("failed to get diff between %s and %s in sippy: %v", baseVersion, newVersion, err)
		return nil
	}
	return pullRequestURLs(payload)
}

// fetch runs one sippy query. Failures come back coded so callers can tell
// a remote-service outage from their own mistakes.
func (c *SippyClient) fetch(ctx context.Context, path string, params map[string]string) ([]sippyPullRequest, error) {
	var payload []sippyPullRequest
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&payload).
		Get(c.baseURL + path)
	if err != nil {
		return nil, errors.NewError().WithCode(errors.CodeRemoteServiceError).
			WithMessagef("sippy request %s failed", path).WithError(err)
	}
	if resp.IsError() {
		return nil, errors.NewError().WithCode(errors.CodeRemoteServiceError).
			WithMessagef("sippy request %s returned status %d", path, resp.StatusCode())
	}
	return payload, nil
}

func pullRequestURLs(payload []sippyPullRequest) []string {
	urls := make([]string, 0, len(payload))
	for _, pr := range payload {
		urls = append(urls, pr.URL)
	}
	return urls
}
