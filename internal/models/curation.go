// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package models

import "time"

// CurationAction is the outcome of a curator evaluation.
type CurationAction string

// Curator outcomes. Queue means accepted in principle but deferred for
// genre-balance ordering; it is not a rejection.
const (
	ActionAccept    CurationAction = "accept"
	ActionReject    CurationAction = "reject"
	ActionDuplicate CurationAction = "duplicate"
	ActionQueue     CurationAction = "queue"
)

// MatchType classifies how a duplicate was detected.
type MatchType string

const (
	// MatchExact is an exact (title, year) match.
	MatchExact MatchType = "exact"
	// MatchRemake is a same-title, different-year match.
	MatchRemake MatchType = "remake"
	// MatchExisting means the external ID is already present.
	MatchExisting MatchType = "existing"
)

// Decision is the curator's verdict on a candidate.
type Decision struct {
	Action      CurationAction `json:"action"`
	Reason      string         `json:"reason"`
	Score       float64        `json:"score,omitempty"`
	Era         string         `json:"era,omitempty"`
	MatchType   MatchType      `json:"match_type,omitempty"`
	DuplicateOf int64          `json:"duplicate_of,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
}

// CurationLogEntry is one immutable row of the curation audit trail.
// Entries are append-only and never mutated.
type CurationLogEntry struct {
	ExternalID int64          `json:"external_id"`
	Action     CurationAction `json:"action"`
	Reason     string         `json:"reason"`
	Source     string         `json:"source"`
	Score      float64        `json:"score"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Rejection captures the metrics that caused a reject decision, kept
// separately from the curation log to support later threshold tuning.
type Rejection struct {
	ExternalID  int64     `json:"external_id"`
	Title       string    `json:"title"`
	Year        int       `json:"year"`
	Reason      string    `json:"reason"`
	VoteAverage float64   `json:"vote_average"`
	VoteCount   int64     `json:"vote_count"`
	Score       float64   `json:"score"`
	CreatedAt   time.Time `json:"created_at"`
}

// DuplicateMapping records a detected duplicate. PrimaryID is always an
// external ID already present in the films table.
type DuplicateMapping struct {
	PrimaryID   int64     `json:"primary_id"`
	DuplicateID int64     `json:"duplicate_id"`
	MatchType   MatchType `json:"match_type"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// QualityMetrics is a per-film snapshot of the composite score and its
// components. Unlike the curation log it is recalculable and overwritable.
type QualityMetrics struct {
	ExternalID   int64     `json:"external_id"`
	Score        float64   `json:"score"`
	RatingPts    float64   `json:"rating_pts"`
	VotePts      float64   `json:"vote_pts"`
	AgePts       float64   `json:"age_pts"`
	CulturalPts  float64   `json:"cultural_pts"`
	DiversityPts float64   `json:"diversity_pts"`
	PopularityPts float64  `json:"popularity_pts"`
	UpdatedAt    time.Time `json:"updated_at"`
}
