// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

/*
curation.go - Curation Audit Trail

The curation log is append-only and never mutated. Rejections and duplicate
mappings are separate structured tables so threshold tuning and dedupe
review do not have to parse free-text reasons. Quality metrics snapshots
are the one overwritable table here: they are recalculable.
*/

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/vitascope/internal/models"
)

// AppendCurationLog writes one immutable audit row for a curator decision.
func (db *DB) AppendCurationLog(ctx context.Context, e *models.CurationLogEntry) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO curation_log (external_id, action, reason, source, score)
		VALUES (?, ?, ?, ?, ?)`,
		e.ExternalID, string(e.Action), e.Reason, e.Source, e.Score)
	if err != nil {
		return fmt.Errorf("append curation log: %w", err)
	}
	return nil
}

// InsertRejection records the metrics behind a reject decision.
func (db *DB) InsertRejection(ctx context.Context, r *models.Rejection) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO rejections (external_id, title, year, reason, vote_average, vote_count, score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ExternalID, r.Title, r.Year, r.Reason, r.VoteAverage, r.VoteCount, r.Score)
	if err != nil {
		return fmt.Errorf("insert rejection: %w", err)
	}
	return nil
}

// InsertDuplicateMapping records a detected duplicate pair. Re-detecting
// the same pair is a no-op.
func (db *DB) InsertDuplicateMapping(ctx context.Context, m *models.DuplicateMapping) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO duplicate_mappings (primary_id, duplicate_id, match_type, confidence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (primary_id, duplicate_id) DO NOTHING`,
		m.PrimaryID, m.DuplicateID, string(m.MatchType), m.Confidence)
	if err != nil {
		return fmt.Errorf("insert duplicate mapping: %w", err)
	}
	return nil
}

// UpsertQualityMetrics overwrites the per-film score snapshot.
func (db *DB) UpsertQualityMetrics(ctx context.Context, m *models.QualityMetrics) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO quality_metrics (
			external_id, score, rating_pts, vote_pts, age_pts,
			cultural_pts, diversity_pts, popularity_pts, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (external_id) DO UPDATE SET
			score = excluded.score,
			rating_pts = excluded.rating_pts,
			vote_pts = excluded.vote_pts,
			age_pts = excluded.age_pts,
			cultural_pts = excluded.cultural_pts,
			diversity_pts = excluded.diversity_pts,
			popularity_pts = excluded.popularity_pts,
			updated_at = now()`,
		m.ExternalID, m.Score, m.RatingPts, m.VotePts, m.AgePts,
		m.CulturalPts, m.DiversityPts, m.PopularityPts)
	if err != nil {
		return fmt.Errorf("upsert quality metrics: %w", err)
	}
	return nil
}

// RecentCurationLog returns the newest audit entries, newest first.
func (db *DB) RecentCurationLog(ctx context.Context, limit int) ([]models.CurationLogEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT external_id, action, reason, source, score, created_at
		FROM curation_log
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent curation log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []models.CurationLogEntry
	for rows.Next() {
		var e models.CurationLogEntry
		var action string
		if err := rows.Scan(&e.ExternalID, &action, &e.Reason, &e.Source, &e.Score, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = models.CurationAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
