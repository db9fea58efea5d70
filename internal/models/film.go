// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package models defines the shared domain types for Vitascope: catalog
// films, queue entries, curation decisions, and pipeline bookkeeping rows.
//
// Types in this package have no behavior beyond simple derivations so they
// can be imported by every layer without creating cycles.
package models

import (
	"strconv"
	"time"
)

// ProcessingStatus tracks a film's position in the indexing pipeline.
type ProcessingStatus string

// Pipeline statuses. A film is created pending, claimed as processing, and
// finishes completed or failed. vector_id is non-null iff the status is
// completed; the two fields are always written in a single UPDATE.
const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// MaxAttempts is the retry cap for failed pipeline items. Items at or above
// this count are only retried by explicit administrative action.
const MaxAttempts = 3

// Film is one catalog entry. ExternalID is the stable provider-assigned
// identifier and the primary key everywhere.
type Film struct {
	ExternalID       int64            `json:"external_id"`
	Title            string           `json:"title"`
	Year             int              `json:"year"`
	ReleaseDate      time.Time        `json:"release_date,omitempty"`
	VoteAverage      float64          `json:"vote_average"`
	VoteCount        int64            `json:"vote_count"`
	Popularity       float64          `json:"popularity"`
	Genres           []string         `json:"genres"`
	Runtime          int              `json:"runtime,omitempty"`
	Overview         string           `json:"overview,omitempty"`
	OriginalLanguage string           `json:"original_language,omitempty"`
	Countries        []string         `json:"countries,omitempty"`
	Keywords         []string         `json:"keywords,omitempty"`
	InClassicSet     bool             `json:"in_classic_set,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	VectorID         string           `json:"vector_id,omitempty"`
	Attempts         int              `json:"attempts"`
	LastError        string           `json:"last_error,omitempty"`
	CreatedAt        time.Time        `json:"created_at,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at,omitempty"`
}

// VectorID derives the similarity-index identifier for a film from its
// external ID. The derivation is a pure function, so reprocessing a film
// always upserts the same vector entry instead of creating a second one.
func VectorID(externalID int64) string {
	return "film-" + strconv.FormatInt(externalID, 10)
}

// PrimaryGenre returns the film's first listed genre, or empty string.
// The provider lists genres in order of significance.
func (f *Film) PrimaryGenre() string {
	if len(f.Genres) == 0 {
		return ""
	}
	return f.Genres[0]
}

// Age returns the film's age in whole years at the given instant, based on
// the release date when known and the release year otherwise. Year-only
// candidates are anchored to December 31st so a film is never considered
// older than it can be.
func (f *Film) Age(now time.Time) float64 {
	release := f.ReleaseDate
	if release.IsZero() {
		release = time.Date(f.Year, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	return now.Sub(release).Hours() / (24 * 365.25)
}
