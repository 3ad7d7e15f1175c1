// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package enrich

import (
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/perfscale/driftwatch/pkg/logger/log"
)

const (
	tinyURLEndpoint = "https://tinyurl.com/api-create.php"
	shortenTimeout  = 10 * time.Second
)

// Shortener rewrites build URLs through tinyurl so wide CI links stay
// readable in table output.
type Shortener struct {
	endpoint   string
	httpClient *resty.Client
}

// NewShortener builds a shortener over the public tinyurl endpoint.
func NewShortener() *Shortener {
	return NewShortenerWithEndpoint(tinyURLEndpoint)
}

// NewShortenerWithEndpoint builds a shortener against a custom endpoint.
func NewShortenerWithEndpoint(endpoint string) *Shortener {
	return &Shortener{
		endpoint:   endpoint,
		httpClient: resty.New().SetTimeout(shortenTimeout),
	}
}

// Shorten rewrites every comma-separated URL in the cell. A URL that fails
// to shorten passes through unchanged.
func (s *Shortener) Shorten(buildURL string) string {
	parts := strings.Split(buildURL, ",")
	shortened := make([]string, 0, len(parts))
	for _, part := range parts {
		shortened = append(shortened, s.shortenOne(part))
	}
	return strings.Join(shortened, ",")
}

func (s *Shortener) shortenOne(buildURL string) string {
	resp, err := s.httpClient.R().
		SetQueryParam("url", buildURL).
		Get(s.endpoint)
	if err != nil || resp.IsError() {
		log.Warnf("couldn't shorten %s, keeping the original", buildURL)
		return buildURL
	}
	short := strings.TrimSpace(string(resp.Body()))
	if short == "" {
		return buildURL
	}
	return short
}
