// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package curator decides whether a candidate film belongs in the catalog.
//
// Evaluate runs a fixed pipeline of checks and short-circuits on the first
// decisive outcome: existence, duplicate detection, era admission criteria,
// composite quality score, genre balance. Every outcome is appended to the
// curation log; rejections additionally write a structured rejection record
// for threshold tuning.
package curator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/vitascope/internal/catalog"
	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/models"
)

// Store is the persistence surface the curator needs.
type Store interface {
	FilmExists(ctx context.Context, externalID int64) (bool, error)
	FindFilmsByTitle(ctx context.Context, title string) ([]models.Film, error)
	GenreDistribution(ctx context.Context) (map[string]float64, error)
	EraDistribution(ctx context.Context) (map[string]int64, error)
	AppendCurationLog(ctx context.Context, e *models.CurationLogEntry) error
	InsertRejection(ctx context.Context, r *models.Rejection) error
	InsertDuplicateMapping(ctx context.Context, m *models.DuplicateMapping) error
	UpsertQualityMetrics(ctx context.Context, m *models.QualityMetrics) error
}

// remakeConfidence is the recorded confidence for same-title,
// different-year matches. Titles collide legitimately often enough that a
// remake match is never certain.
const remakeConfidence = 0.8

// Curator evaluates candidates against the catalog's admission policy.
type Curator struct {
	store     Store
	cfg       config.CuratorConfig
	admission catalog.Admission

	// now is a seam for deterministic scoring in tests.
	now func() time.Time
}

// New creates a curator. The admission rules are shared with the catalog
// client so manually submitted candidates face the same era criteria.
func New(store Store, cfg config.CuratorConfig, admission catalog.Admission) *Curator {
	return &Curator{
		store:     store,
		cfg:       cfg,
		admission: admission,
		now:       time.Now,
	}
}

// Evaluate runs the curation pipeline on one candidate and records the
// outcome. The source label tags where the candidate came from (pipeline,
// admin, discovery) in the audit trail.
func (c *Curator) Evaluate(ctx context.Context, f *models.Film, source string) (*models.Decision, error) {
	decision, err := c.decide(ctx, f)
	if err != nil {
		return nil, err
	}

	if err := c.record(ctx, f, source, decision); err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Int64("external_id", f.ExternalID).
		Str("title", f.Title).
		Str("action", string(decision.Action)).
		Str("reason", decision.Reason).
		Float64("score", decision.Score).
		Str("source", source).
		Msg("Curation decision")

	return decision, nil
}

// decide runs the ordered checks and returns the first decisive outcome.
func (c *Curator) decide(ctx context.Context, f *models.Film) (*models.Decision, error) {
	// 1. Existence: the external ID is already in the catalog.
	exists, err := c.store.FilmExists(ctx, f.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("existence check: %w", err)
	}
	if exists {
		return &models.Decision{
			Action:      models.ActionDuplicate,
			Reason:      "external id already in catalog",
			MatchType:   models.MatchExisting,
			DuplicateOf: f.ExternalID,
			Confidence:  1.0,
		}, nil
	}

	// 2. Duplicate detection by title.
	dup, err := c.findDuplicate(ctx, f)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return dup, nil
	}

	// 3. Era admission criteria. Reapplied here because candidates can be
	// submitted directly by an admin, bypassing the catalog client.
	if reason := c.admission.Check(f); reason != "" {
		return &models.Decision{
			Action: models.ActionReject,
			Reason: reason,
			Era:    catalog.BucketFor(f.Year).Label,
		}, nil
	}

	// 4. Composite quality score.
	genreShare, err := c.store.GenreDistribution(ctx)
	if err != nil {
		return nil, fmt.Errorf("genre distribution: %w", err)
	}

	metrics := Score(f, genreShare, c.cfg.GenreTargets, c.cfg.DefaultGenreTarget, c.now())
	if err := c.store.UpsertQualityMetrics(ctx, &metrics); err != nil {
		return nil, fmt.Errorf("store quality metrics: %w", err)
	}

	era := catalog.BucketFor(f.Year).Label
	if metrics.Score < c.cfg.MinScore {
		return &models.Decision{
			Action: models.ActionReject,
			Reason: fmt.Sprintf("quality_score_below_threshold: %.1f < %.1f", metrics.Score, c.cfg.MinScore),
			Score:  metrics.Score,
			Era:    era,
		}, nil
	}

	// 5. Genre balance: an over-target dominant genre defers the candidate
	// to the queue instead of admitting it immediately.
	if genre := f.PrimaryGenre(); genre != "" {
		target, ok := c.cfg.GenreTargets[genre]
		if !ok {
			target = c.cfg.DefaultGenreTarget
		}
		if share := genreShare[genre]; share > target*(1+c.cfg.BalanceTolerance) {
			return &models.Decision{
				Action: models.ActionQueue,
				Reason: fmt.Sprintf("genre_over_target: %s at %.0f%% of catalog, target %.0f%%",
					genre, share*100, target*100),
				Score: metrics.Score,
				Era:   era,
			}, nil
		}
	}

	// 6. Accepted.
	return &models.Decision{
		Action: models.ActionAccept,
		Reason: "passed all curation checks",
		Score:  metrics.Score,
		Era:    era,
	}, nil
}

// findDuplicate looks for title matches among stored films. An exact
// (title, year) match is certain; a same-title different-year match is
// recorded as a probable remake.
func (c *Curator) findDuplicate(ctx context.Context, f *models.Film) (*models.Decision, error) {
	matches, err := c.store.FindFilmsByTitle(ctx, f.Title)
	if err != nil {
		return nil, fmt.Errorf("title lookup: %w", err)
	}

	var remake *models.Film
	for i := range matches {
		m := &matches[i]
		if !strings.EqualFold(m.Title, f.Title) {
			continue
		}
		if m.Year == f.Year {
			return &models.Decision{
				Action:      models.ActionDuplicate,
				Reason:      fmt.Sprintf("exact title and year match with %d", m.ExternalID),
				MatchType:   models.MatchExact,
				DuplicateOf: m.ExternalID,
				Confidence:  1.0,
			}, nil
		}
		if remake == nil {
			remake = m
		}
	}

	if remake != nil {
		return &models.Decision{
			Action:      models.ActionDuplicate,
			Reason:      fmt.Sprintf("same title as %d (%d), different year", remake.ExternalID, remake.Year),
			MatchType:   models.MatchRemake,
			DuplicateOf: remake.ExternalID,
			Confidence:  remakeConfidence,
		}, nil
	}
	return nil, nil
}

// record persists the audit trail for a decision: always the curation log,
// plus the rejection record or duplicate mapping where applicable.
func (c *Curator) record(ctx context.Context, f *models.Film, source string, d *models.Decision) error {
	now := c.now()

	err := c.store.AppendCurationLog(ctx, &models.CurationLogEntry{
		ExternalID: f.ExternalID,
		Action:     d.Action,
		Reason:     d.Reason,
		Source:     source,
		Score:      d.Score,
		CreatedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("append curation log: %w", err)
	}

	switch d.Action {
	case models.ActionReject:
		err := c.store.InsertRejection(ctx, &models.Rejection{
			ExternalID:  f.ExternalID,
			Title:       f.Title,
			Year:        f.Year,
			Reason:      d.Reason,
			VoteAverage: f.VoteAverage,
			VoteCount:   f.VoteCount,
			Score:       d.Score,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("insert rejection: %w", err)
		}

	case models.ActionDuplicate:
		// An existing-ID duplicate maps to itself; nothing new to record.
		if d.MatchType == models.MatchExisting {
			break
		}
		err := c.store.InsertDuplicateMapping(ctx, &models.DuplicateMapping{
			PrimaryID:   d.DuplicateOf,
			DuplicateID: f.ExternalID,
			MatchType:   d.MatchType,
			Confidence:  d.Confidence,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("insert duplicate mapping: %w", err)
		}
	}
	return nil
}
