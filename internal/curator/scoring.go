// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

/*
scoring.go - Composite Quality Score

Combines six weighted components into a 0-100 score. Raw admission
thresholds only say a film is not obviously bad; the composite score ranks
how strongly it belongs in a curated catalog. Component points are stored
alongside the total so threshold tuning can see which component carried or
sank a candidate.
*/

package curator

import (
	"math"
	"time"

	"github.com/tomtom215/vitascope/internal/models"
)

// Component weights. They sum to 1.0 so the total stays in [0, 100].
const (
	weightRating     = 0.40
	weightVotes      = 0.20
	weightAge        = 0.15
	weightCultural   = 0.15
	weightDiversity  = 0.05
	weightPopularity = 0.05
)

// voteConfidenceCeiling is the log10 vote count at which vote confidence
// saturates (100k votes).
const voteConfidenceCeiling = 5.0

// diversityRawCap caps the raw underrepresentation points before they are
// normalized to the 0-1 scale.
const diversityRawCap = 15.0

// culturalVoteFloor grants partial cultural significance on vote volume
// alone, without a classic-collection flag.
const culturalVoteFloor = 10000

// Score computes the composite quality score for a candidate.
//
// genreShare is the catalog's current genre distribution (share of films
// per genre, 0-1) and genreTargets the configured target shares; both feed
// the diversity bonus for underrepresented genres.
func Score(f *models.Film, genreShare, genreTargets map[string]float64, defaultTarget float64, now time.Time) models.QualityMetrics {
	m := models.QualityMetrics{
		ExternalID: f.ExternalID,
		UpdatedAt:  now,
	}

	m.RatingPts = clamp01(f.VoteAverage/10) * 100 * weightRating

	voteConfidence := 0.0
	if f.VoteCount > 0 {
		voteConfidence = clamp01(math.Log10(float64(f.VoteCount)) / voteConfidenceCeiling)
	}
	m.VotePts = voteConfidence * 100 * weightVotes

	m.AgePts = ageTier(f.Age(now)) * 100 * weightAge
	m.CulturalPts = culturalTier(f) * 100 * weightCultural
	m.DiversityPts = diversityBonus(f, genreShare, genreTargets, defaultTarget) * 100 * weightDiversity
	m.PopularityPts = popularityTier(f.Popularity) * 100 * weightPopularity

	total := m.RatingPts + m.VotePts + m.AgePts + m.CulturalPts + m.DiversityPts + m.PopularityPts
	m.Score = math.Min(100, math.Max(0, total))
	return m
}

// ageTier rewards films that have stayed relevant: surviving decades of
// reappraisal is itself a quality signal.
func ageTier(years float64) float64 {
	switch {
	case years > 50:
		return 1.0
	case years > 30:
		return 0.8
	case years > 20:
		return 0.6
	case years > 10:
		return 0.4
	default:
		return 0.2
	}
}

// culturalTier scores recognized cultural significance.
func culturalTier(f *models.Film) float64 {
	if f.InClassicSet {
		return 1.0
	}
	if f.VoteCount > culturalVoteFloor {
		return 0.5
	}
	return 0
}

// diversityBonus rewards candidates whose genres the catalog is short on.
// Each underrepresented genre contributes its shortfall in percentage
// points; the raw sum is capped and normalized to 0-1.
func diversityBonus(f *models.Film, genreShare, genreTargets map[string]float64, defaultTarget float64) float64 {
	raw := 0.0
	for _, genre := range f.Genres {
		target, ok := genreTargets[genre]
		if !ok {
			target = defaultTarget
		}
		if gap := target - genreShare[genre]; gap > 0 {
			raw += gap * 100
		}
	}
	return clamp01(raw / diversityRawCap)
}

// popularityTier converts the provider's popularity metric into a bonus.
// Popularity is a weak signal, so it only carries 5% of the total.
func popularityTier(popularity float64) float64 {
	switch {
	case popularity >= 50:
		return 1.0
	case popularity >= 25:
		return 0.8
	case popularity >= 10:
		return 0.6
	case popularity >= 5:
		return 0.4
	case popularity > 0:
		return 0.2
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
