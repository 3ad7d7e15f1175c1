// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfscale/driftwatch/pkg/errors"
)

const (
	windowStart = int64(1700000000)
	windowEnd   = windowStart + 86400
)

func isoAt(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func githubFixture(t *testing.T, hits *int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/perf/tool/releases":
			json.NewEncoder(w).Encode([]map[string]string{
				{
					"name":         "v1.2.0",
					"html_url":     "https://github.com/perf/tool/releases/v1.2.0",
					"published_at": isoAt(windowStart + 3600),
				},
				{
					"name":         "v1.1.0",
					"html_url":     "https://github.com/perf/tool/releases/v1.1.0",
					"published_at": isoAt(windowStart - 3600),
				},
			})
		case "/repos/perf/tool/commits":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{
					"html_url": "https://github.com/perf/tool/commit/abc",
					"commit": map[string]interface{}{
						"message": "tune listener backlog",
						"author": map[string]string{
							"name":  "dev",
							"email": "dev@example.com",
							"date":  isoAt(windowStart + 7200),
						},
					},
				},
				{
					"html_url": "https://github.com/perf/tool/commit/old",
					"commit": map[string]interface{}{
						"message": "ancient history",
						"author": map[string]string{
							"name":  "dev",
							"email": "dev@example.com",
							"date":  isoAt(windowStart - 7200),
						},
					},
				},
			})
		case "/repos/perf/tool/pulls/42":
			json.NewEncoder(w).Encode(map[string]string{"created_at": isoAt(windowStart)})
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, "{}")
		}
	}))
}

func TestChangeContextCollectsReleasesAndCommits(t *testing.T) {
	hits := 0
	server := githubFixture(t, &hits)
	defer server.Close()

	client := NewGitHubClientWithBaseURL([]string{"perf/tool"}, "test-token", server.URL)
	context42 := client.ChangeContext(context.Background(), windowStart, windowEnd, "4.17.1", "4.17.2")
	require.NotNil(t, context42)

	repo := context42.Repositories["perf/tool"]
	require.Equal(t, 1, repo.Releases.Count)
	assert.Equal(t, "v1.2.0", repo.Releases.Items[0].Name)
	assert.Empty(t, repo.Releases.Reason)

	require.Equal(t, 1, repo.Commits.Count)
	assert.Equal(t, "tune listener backlog", repo.Commits.Items[0].Message)
	assert.Equal(t, "dev", repo.Commits.Items[0].CommitAuthor.Name)

	assert.Equal(t, "4.17.1", context42.PreviousVersion)
	assert.Equal(t, "4.17.2", context42.CurrentVersion)
}

func TestChangeContextCachesIntervals(t *testing.T) {
	hits := 0
	server := githubFixture(t, &hits)
	defer server.Close()

	client := NewGitHubClientWithBaseURL([]string{"perf/tool"}, "", server.URL)
	first := client.ChangeContext(context.Background(), windowStart, windowEnd, "a", "b")
	require.NotNil(t, first)
	fetched := hits

	second := client.ChangeContext(context.Background(), windowStart, windowEnd, "a", "b")
	assert.Same(t, first, second)
	assert.Equal(t, fetched, hits)
}

func TestChangeContextInvalidRepository(t *testing.T) {
	client := NewGitHubClientWithBaseURL([]string{"noslash"}, "", "http://127.0.0.1:1")
	result := client.ChangeContext(context.Background(), windowStart, windowEnd, "", "")
	require.NotNil(t, result)
	assert.Contains(t, result.Repositories["noslash"].Releases.Reason, "invalid repository format")
}

func TestChangeContextInvertedInterval(t *testing.T) {
	client := NewGitHubClientWithBaseURL([]string{"perf/tool"}, "", "http://127.0.0.1:1")
	result := client.ChangeContext(context.Background(), windowEnd, windowStart, "", "")
	require.NotNil(t, result)
	assert.Contains(t, result.Repositories["perf/tool"].Commits.Reason, "not earlier")
}

func TestChangeContextWithoutRepositories(t *testing.T) {
	client := NewGitHubClientWithBaseURL(nil, "", "http://127.0.0.1:1")
	assert.Nil(t, client.ChangeContext(context.Background(), windowStart, windowEnd, "", ""))
}

func TestPRCreationDate(t *testing.T) {
	hits := 0
	server := githubFixture(t, &hits)
	defer server.Close()

	client := NewGitHubClientWithBaseURL(nil, "", server.URL)
	created, ok := client.PRCreationDate(context.Background(), "perf", "tool", 42)
	require.True(t, ok)
	assert.Equal(t, time.Unix(windowStart, 0).UTC(), created)

	_, ok = client.PRCreationDate(context.Background(), "perf", "tool", 9999)
	assert.False(t, ok)
}

func TestSippyPullRequests(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.Equal(t, "/api/releases/pull_requests", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("filter"), "release_tag")
		assert.Contains(t, r.URL.Query().Get("filter"), "4.17.0-rc.2")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]string{
			{"url": "https://github.com/openshift/origin/pull/1"},
			{"url": "https://github.com/openshift/origin/pull/2"},
		})
	}))
	defer server.Close()

	client := NewSippyClientWithBaseURL(server.URL)
	prs := client.PullRequests(context.Background(), "4.17.0-rc.2")
	assert.Equal(t, []string{
		"https://github.com/openshift/origin/pull/1",
		"https://github.com/openshift/origin/pull/2",
	}, prs)

	// answered versions are cached
	client.PullRequests(context.Background(), "4.17.0-rc.2")
	assert.Equal(t, 1, hits)
}

func TestSippyFailureYieldsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewSippyClientWithBaseURL(server.URL)
	assert.Empty(t, client.PullRequests(context.Background(), "4.17.0-rc.2"))
	assert.Empty(t, client.PayloadDiff(context.Background(), "a", "b"))

	_, err := client.fetch(context.Background(), "/api/payloads/diff", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRemoteServiceError))
}

func TestSippyPayloadDiff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/payloads/diff", r.URL.Path)
		assert.Equal(t, "4.17.0-rc.1", r.URL.Query().Get("fromPayload"))
		assert.Equal(t, "4.17.0-rc.2", r.URL.Query().Get("toPayload"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]string{
			{"url": "https://github.com/openshift/origin/pull/3"},
		})
	}))
	defer server.Close()

	client := NewSippyClientWithBaseURL(server.URL)
	prs := client.PayloadDiff(context.Background(), "4.17.0-rc.1", "4.17.0-rc.2")
	assert.Equal(t, []string{"https://github.com/openshift/origin/pull/3"}, prs)
}

func TestShortenRewritesEveryURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "https://tiny.example/%d", len(r.URL.Query().Get("url")))
	}))
	defer server.Close()

	shortener := NewShortenerWithEndpoint(server.URL)
	out := shortener.Shorten("https://ci/a,https://ci/bb")
	assert.Equal(t, "https://tiny.example/12,https://tiny.example/13", out)
}

func TestShortenKeepsOriginalOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	shortener := NewShortenerWithEndpoint(server.URL)
	assert.Equal(t, "https://ci/a", shortener.Shorten("https://ci/a"))
}
