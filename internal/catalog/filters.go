// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

/*
filters.go - Era-Bucketed Admission Rules

Older films accumulated votes over decades on a smaller user base, so one
flat vote threshold would either starve the classic catalog or flood it
with barely-rated recent releases. Each release era therefore carries its
own minimum vote count and rating.

These rules are hard: a candidate that fails them is dropped before any
expensive work (embedding, vector upload) happens, and no partial record
is created.
*/

package catalog

import (
	"fmt"
	"time"

	"github.com/tomtom215/vitascope/internal/models"
)

// EraBucket is one release-year range with its own admission thresholds.
type EraBucket struct {
	Label     string
	MinVotes  int64
	MinRating float64
}

// eraBuckets maps exclusive upper year bounds to thresholds, checked in
// order. The final bucket catches everything at or above 2023.
var eraBuckets = []struct {
	beforeYear int // exclusive upper bound; 0 = no bound
	bucket     EraBucket
}{
	{1970, EraBucket{Label: "pre-1970", MinVotes: 500, MinRating: 7.0}},
	{1990, EraBucket{Label: "1970-1989", MinVotes: 1000, MinRating: 7.0}},
	{2000, EraBucket{Label: "1990-1999", MinVotes: 5000, MinRating: 7.0}},
	{2016, EraBucket{Label: "2000-2015", MinVotes: 10000, MinRating: 7.2}},
	{2023, EraBucket{Label: "2016-2022", MinVotes: 20000, MinRating: 7.5}},
	{0, EraBucket{Label: "2023+", MinVotes: 50000, MinRating: 8.0}},
}

// BucketFor returns the admission thresholds for a release year.
func BucketFor(year int) EraBucket {
	for _, e := range eraBuckets {
		if e.beforeYear == 0 || year < e.beforeYear {
			return e.bucket
		}
	}
	// Unreachable: the last bucket is unbounded.
	return eraBuckets[len(eraBuckets)-1].bucket
}

// Runtime bounds for post-1960 releases. Catalogs under-report runtime for
// older films, so those are exempt.
const (
	minRuntimeMinutes  = 60
	maxRuntimeMinutes  = 240
	runtimeExemptUntil = 1960
)

// Admission applies the hard, non-negotiable filters to a candidate.
type Admission struct {
	// MinAgeYears is the minimum catalog age; younger films have not had
	// time to accumulate a reputation.
	MinAgeYears int

	// Now is a seam for deterministic age checks in tests.
	// Defaults to time.Now.
	Now func() time.Time
}

// Check returns an empty string when the candidate is admissible, or a
// short machine-readable reason for the rejection.
func (a Admission) Check(f *models.Film) string {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	if f.Age(now()) < float64(a.MinAgeYears) {
		return fmt.Sprintf("too_recent: released within the last %d years", a.MinAgeYears)
	}

	bucket := BucketFor(f.Year)
	if f.VoteCount < bucket.MinVotes {
		return fmt.Sprintf("insufficient_votes: %d < %d required for era %s",
			f.VoteCount, bucket.MinVotes, bucket.Label)
	}
	if f.VoteAverage < bucket.MinRating {
		return fmt.Sprintf("rating_below_threshold: %.1f < %.1f required for era %s",
			f.VoteAverage, bucket.MinRating, bucket.Label)
	}

	// Runtime 0 means the catalog did not report one. Unknown is not a
	// violation; only a reported out-of-range runtime rejects.
	if f.Runtime > 0 && f.Year > runtimeExemptUntil &&
		(f.Runtime < minRuntimeMinutes || f.Runtime > maxRuntimeMinutes) {
		return fmt.Sprintf("runtime_out_of_range: %d minutes outside [%d, %d]",
			f.Runtime, minRuntimeMinutes, maxRuntimeMinutes)
	}

	return ""
}
