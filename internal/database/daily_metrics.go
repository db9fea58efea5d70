// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/vitascope/internal/models"
)

// DailyColumn names one counter of the daily_metrics aggregation row.
type DailyColumn string

// Daily metric counters, one column each. Every pipeline stage increments
// its own column; monitoring reads the whole row.
const (
	DailyItemsProcessed    DailyColumn = "items_processed"
	DailyEmbeddingsCreated DailyColumn = "embeddings_created"
	DailyVectorsUploaded   DailyColumn = "vectors_uploaded"
	DailyProviderRequests  DailyColumn = "provider_requests"
	DailyErrors            DailyColumn = "errors"
)

// validDailyColumns guards against column injection; DailyColumn values
// are interpolated into SQL.
var validDailyColumns = map[DailyColumn]bool{
	DailyItemsProcessed:    true,
	DailyEmbeddingsCreated: true,
	DailyVectorsUploaded:   true,
	DailyProviderRequests:  true,
	DailyErrors:            true,
}

// IncrementDaily adds n to one counter of today's aggregation row,
// creating the row on first write of the day.
func (db *DB) IncrementDaily(ctx context.Context, col DailyColumn, n int64) error {
	if !validDailyColumns[col] {
		return fmt.Errorf("unknown daily metrics column %q", col)
	}

	day := time.Now().UTC().Format("2006-01-02")
	//nolint:gosec // col is validated against a fixed allowlist above
	query := fmt.Sprintf(`
		INSERT INTO daily_metrics (day, %[1]s) VALUES (?, ?)
		ON CONFLICT (day) DO UPDATE SET %[1]s = daily_metrics.%[1]s + excluded.%[1]s`, col)

	if _, err := db.conn.ExecContext(ctx, query, day, n); err != nil {
		return fmt.Errorf("increment daily %s: %w", col, err)
	}
	return nil
}

// GetDailyMetrics returns the aggregation row for the given day
// (YYYY-MM-DD). A day with no activity returns a zero row.
func (db *DB) GetDailyMetrics(ctx context.Context, day string) (*models.DailyMetrics, error) {
	m := &models.DailyMetrics{Day: day}
	err := db.conn.QueryRowContext(ctx, `
		SELECT items_processed, embeddings_created, vectors_uploaded, provider_requests, errors
		FROM daily_metrics WHERE day = ?`, day).
		Scan(&m.ItemsProcessed, &m.EmbeddingsCreated, &m.VectorsUploaded, &m.ProviderRequests, &m.Errors)
	if errors.Is(err, sql.ErrNoRows) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily metrics: %w", err)
	}
	return m, nil
}
