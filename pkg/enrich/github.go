// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package enrich decorates detected regressions with release, commit and
// pull-request context from external services. Every client here degrades
// gracefully: a failed call yields empty context, never a failed analysis.
package enrich

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/perfscale/driftwatch/pkg/logger/log"
)

const (
	githubBaseURL  = "https://api.github.com"
	githubTimeout  = 15 * time.Second
	githubPageSize = 100

	cacheExpiration = time.Hour
	cacheCleanup    = 10 * time.Minute
)

// ReleaseInfo is one release published between two change-point runs.
type ReleaseInfo struct {
	Name            string `json:"name"`
	HTMLURL         string `json:"html_url"`
	PublishedAt     string `json:"published_at"`
	CreatedAt       string `json:"created_at"`
	TargetCommitish string `json:"target_commitish"`
}

// CommitInfo is one commit landed between two change-point runs.
type CommitInfo struct {
	HTMLURL         string    `json:"html_url"`
	CommitAuthor    GitAuthor `json:"commit_author"`
	CommitTimestamp string    `json:"commit_timestamp"`
	Message         string    `json:"message"`
}

// GitAuthor identifies a commit author.
type GitAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ReleaseWindow lists the releases inside one interval. Reason explains an
// empty window.
type ReleaseWindow struct {
	Start  string        `json:"start"`
	End    string        `json:"end"`
	Count  int           `json:"count"`
	Items  []ReleaseInfo `json:"items"`
	Reason string        `json:"reason,omitempty"`
}

// CommitWindow lists the commits inside one interval.
type CommitWindow struct {
	Start  string       `json:"start"`
	End    string       `json:"end"`
	Count  int          `json:"count"`
	Items  []CommitInfo `json:"items"`
	Reason string       `json:"reason,omitempty"`
}

// RepositoryContext pairs the release and commit windows of one repository.
type RepositoryContext struct {
	Releases ReleaseWindow `json:"releases"`
	Commits  CommitWindow  `json:"commits"`
}

// ChangeContext is the GitHub context attached to one change point.
type ChangeContext struct {
	PreviousTimestamp string                       `json:"previous_timestamp"`
	CurrentTimestamp  string                       `json:"current_timestamp"`
	PreviousVersion   string                       `json:"previous_version"`
	CurrentVersion    string                       `json:"current_version"`
	Repositories      map[string]RepositoryContext `json:"repositories"`
}

// GitHubClient looks up releases, commits and pull requests, caching every
// answered interval.
type GitHubClient struct {
	baseURL      string
	repositories []string
	httpClient   *resty.Client
	cache        *gocache.Cache
}

// NewGitHubClient builds a client over api.github.com. The token falls
// back to the GITHUB_TOKEN and GH_TOKEN environment variables; without one
// the client runs unauthenticated against the public rate limit.
func NewGitHubClient(repositories []string, token string) *GitHubClient {
	return NewGitHubClientWithBaseURL(repositories, token, githubBaseURL)
}

// NewGitHubClientWithBaseURL builds a client against a custom endpoint.
func NewGitHubClientWithBaseURL(repositories []string, token, baseURL string) *GitHubClient {
	var cleaned []string
	for _, repo := range repositories {
		if repo = strings.TrimSpace(repo); repo != "" {
			cleaned = append(cleaned, repo)
		}
	}

	client := resty.New().
		SetTimeout(githubTimeout).
		SetHeader("Accept", "application/vnd.github+json")

	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}
	if token != "" {
		client.SetHeader("Authorization", "Bearer "+token)
	}

	return &GitHubClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		repositories: cleaned,
		httpClient:   client,
		cache:        gocache.New(cacheExpiration, cacheCleanup),
	}
}

// ChangeContext collects the releases and commits of every configured
// repository between the run preceding a change point and the change point
// itself. Returns nil when no repositories are configured.
func (c *GitHubClient) ChangeContext(ctx context.Context, previous, current int64, previousVersion, currentVersion string) *ChangeContext {
	if len(c.repositories) == 0 {
		return nil
	}
	start := formatUTC(previous)
	end := formatUTC(current)

	cacheKey := fmt.Sprintf("context/%s/%s/%s/%s", start, end, previousVersion, currentVersion)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(*ChangeContext)
	}

	intervalReason := ""
	if previous >= current {
		intervalReason = "previous timestamp is not earlier than current timestamp"
	}

	result := &ChangeContext{
		PreviousTimestamp: start,
		CurrentTimestamp:  end,
		PreviousVersion:   previousVersion,
		CurrentVersion:    currentVersion,
		Repositories:      map[string]RepositoryContext{},
	}
	for _, repo := range c.repositories {
		switch {
		case !strings.Contains(repo, "/"):
			reason := fmt.Sprintf("invalid repository format %q, expected owner/repo", repo)
			result.Repositories[repo] = RepositoryContext{
				Releases: ReleaseWindow{Start: start, End: end, Reason: reason},
				Commits:  CommitWindow{Start: start, End: end, Reason: reason},
			}
		case intervalReason != "":
			result.Repositories[repo] = RepositoryContext{
				Releases: ReleaseWindow{Start: start, End: end, Reason: intervalReason},
				Commits:  CommitWindow{Start: start, End: end, Reason: intervalReason},
			}
		default:
			result.Repositories[repo] = RepositoryContext{
				Releases: c.releasesBetween(ctx, repo, previous, current),
				Commits:  c.commitsBetween(ctx, repo, previous, current),
			}
		}
	}

	c.cache.Set(cacheKey, result, gocache.DefaultExpiration)
	return result
}

// releasesBetween pages through the release list, newest first, keeping
// releases published inside (start, end]. Pagination stops once a release
// predates the interval.
func (c *GitHubClient) releasesBetween(ctx context.Context, repo string, start, end int64) ReleaseWindow {
	window := ReleaseWindow{Start: formatUTC(start), End: formatUTC(end)}

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/releases?per_page=%d&page=%d", c.baseURL, repo, githubPageSize, page)
		var payload []ReleaseInfo
		reason := c.getJSON(ctx, url, &payload)
		if reason != "" {
			window.Reason = reason
			window.Items = nil
			window.Count = 0
			return window
		}
		if len(payload) == 0 {
			break
		}

		done := false
		for _, release := range payload {
			published := release.PublishedAt
			if published == "" {
				published = release.CreatedAt
			}
			ts, err := parseISO(published)
			if err != nil || ts > end {
				continue
			}
			if ts <= start {
				done = true
				break
			}
			window.Items = append(window.Items, release)
		}
		if done || len(payload) < githubPageSize {
			break
		}
	}

	window.Count = len(window.Items)
	if window.Count == 0 {
		window.Reason = "no releases between timestamps"
	}
	return window
}

// commitsBetween pages through the commit list bounded by since/until,
// keeping commits authored inside (start, end].
func (c *GitHubClient) commitsBetween(ctx context.Context, repo string, start, end int64) CommitWindow {
	window := CommitWindow{Start: formatUTC(start), End: formatUTC(end)}

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/commits?per_page=%d&page=%d&since=%s&until=%s",
			c.baseURL, repo, githubPageSize, page, formatUTC(start), formatUTC(end))
		var payload []struct {
			HTMLURL string `json:"html_url"`
			Commit  struct {
				Message string `json:"message"`
				Author  struct {
					Name  string `json:"name"`
					Email string `json:"email"`
					Date  string `json:"date"`
				} `json:"author"`
			} `json:"commit"`
		}
		reason := c.getJSON(ctx, url, &payload)
		if reason != "" {
			window.Reason = reason
			window.Items = nil
			window.Count = 0
			return window
		}
		if len(payload) == 0 {
			break
		}

		for _, commit := range payload {
			ts, err := parseISO(commit.Commit.Author.Date)
			if err != nil || ts <= start || ts > end {
				continue
			}
			window.Items = append(window.Items, CommitInfo{
				HTMLURL: commit.HTMLURL,
				CommitAuthor: GitAuthor{
					Name:  commit.Commit.Author.Name,
					Email: commit.Commit.Author.Email,
				},
				CommitTimestamp: commit.Commit.Author.Date,
				Message:         commit.Commit.Message,
			})
		}
		if len(payload) < githubPageSize {
			break
		}
	}

	window.Count = len(window.Items)
	if window.Count == 0 {
		window.Reason = "no commits between timestamps"
	}
	return window
}

// PRCreationDate looks up when a pull request was opened. The boolean is
// false when the answer is unknown, including on rate limiting.
func (c *GitHubClient) PRCreationDate(ctx context.Context, organization, repository string, number int) (time.Time, bool) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, organization, repository, number)
	var payload struct {
		CreatedAt string `json:"created_at"`
	}
	if reason := c.getJSON(ctx, url, &payload); reason != "" {
		log.Warnf("failed to fetch PR #%d from %s/%s: %s", number, organization, repository, reason)
		return time.Time{}, false
	}
	if payload.CreatedAt == "" {
		log.Warnf("PR #%d from %s/%s has no creation date", number, organization, repository)
		return time.Time{}, false
	}
	created, err := time.Parse(time.RFC3339, payload.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return created.UTC(), true
}

// getJSON fetches and decodes one page. A non-empty return is the reason
// the call yielded nothing.
func (c *GitHubClient) getJSON(ctx context.Context, url string, out interface{}) string {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(out).
		Get(url)
	if err != nil {
		log.Warnf("github request failed for %s: %v", url, err)
		return fmt.Sprintf("request failed: %v", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return "not found (404)"
	case resp.StatusCode() == http.StatusForbidden:
		remaining := resp.Header().Get("X-RateLimit-Remaining")
		if remaining == "" {
			remaining = "unknown"
		}
		log.Warnf("github API rate limited (remaining=%s) for %s", remaining, url)
		return fmt.Sprintf("rate limited or forbidden (remaining=%s)", remaining)
	case resp.IsError():
		log.Warnf("github request returned status %d for %s", resp.StatusCode(), url)
		return fmt.Sprintf("unexpected status %d", resp.StatusCode())
	}
	return ""
}

func formatUTC(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02T15:04:05Z")
}

func parseISO(value string) (int64, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
