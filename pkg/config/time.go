// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package config

import (
	"regexp"
	"strconv"
	"time"

	"github.com/perfscale/driftwatch/pkg/errors"
)

var lookbackPattern = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?$`)

// ParseLookback parses a look-back duration in XdYh form, with either part
// optional.
func ParseLookback(s string) (time.Duration, error) {
	groups := lookbackPattern.FindStringSubmatch(s)
	if groups == nil || s == "" {
		return 0, errors.NewError().WithCode(errors.InvalidArgument).
			WithMessagef("wrong format for time duration %q, provide it as XdYh", s)
	}
	days := 0
	hours := 0
	if groups[1] != "" {
		days, _ = strconv.Atoi(groups[1])
	}
	if groups[2] != "" {
		hours, _ = strconv.Atoi(groups[2])
	}
	return time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour, nil
}

// ParseSince parses the end bound of the analysis window.
func ParseSince(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.NewError().WithCode(errors.InvalidArgument).
			WithMessagef("wrong format for since date %q, provide it as YYYY-MM-DD", s).
			WithError(err)
	}
	return t.UTC(), nil
}
