// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package report

import "context"

// RegressionSummary pairs the last healthy version before a change point
// with the version that regressed.
type RegressionSummary struct {
	PrevVer string   `json:"prev_ver"`
	BadVer  string   `json:"bad_ver"`
	PRs     []string `json:"prs"`
}

// PayloadDiffer resolves the pull requests landed between two release
// payloads. *enrich.SippyClient satisfies it.
type PayloadDiffer interface {
	PayloadDiff(ctx context.Context, baseVersion, newVersion string) []string
}

// BuildRegressionSummary walks the records pairing each change point with
// the nearest non-changepoint version seen. A nil differ skips the PR
// lookup.
func BuildRegressionSummary(ctx context.Context, records []Record, differ PayloadDiffer) []RegressionSummary {
	var summaries []RegressionSummary
	var prevVer, badVer string
	var prevSet, badSet bool
	for _, record := range records {
		if record.IsChangePoint {
			badVer = record.Version
			badSet = true
		} else {
			prevVer = record.Version
			prevSet = true
		}
		if prevSet && badSet {
			summary := RegressionSummary{PrevVer: prevVer, BadVer: badVer, PRs: []string{}}
			if differ != nil {
				// a fresh payload may not have completed its tests yet,
				// leaving the diff empty
				summary.PRs = differ.PayloadDiff(ctx, prevVer, badVer)
			}
			summaries = append(summaries, summary)
			prevSet, badSet = false, false
		}
	}
	return summaries
}
