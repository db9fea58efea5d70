// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

/*
films.go - Film CRUD and Pipeline State Transitions

Status transitions are single-row UPDATEs executed immediately after each
pipeline stage. MarkCompleted writes vector_id and processing_status in one
statement so the vector_id-iff-completed invariant cannot be observed in a
half-written state.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitascope/internal/models"
)

// CreateFilm inserts a new film in pending status. Inserting an existing
// external ID is a no-op so discovery and explicit submission stay
// idempotent.
func (db *DB) CreateFilm(ctx context.Context, f *models.Film) error {
	genres, countries, keywords, err := marshalLists(f)
	if err != nil {
		return err
	}

	var release interface{}
	if !f.ReleaseDate.IsZero() {
		release = f.ReleaseDate
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO films (
			external_id, title, year, release_date, vote_average, vote_count,
			popularity, genres, runtime, overview, original_language,
			countries, keywords, in_classic_set, processing_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')
		ON CONFLICT (external_id) DO NOTHING`,
		f.ExternalID, f.Title, f.Year, release, f.VoteAverage, f.VoteCount,
		f.Popularity, genres, f.Runtime, f.Overview, f.OriginalLanguage,
		countries, keywords, f.InClassicSet)
	if err != nil {
		return fmt.Errorf("insert film %d: %w", f.ExternalID, err)
	}
	return nil
}

// GetFilm fetches one film by external ID. Returns ErrNotFound when absent.
func (db *DB) GetFilm(ctx context.Context, externalID int64) (*models.Film, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT external_id, title, year, release_date, vote_average, vote_count,
		       popularity, genres, runtime, overview, original_language,
		       countries, keywords, in_classic_set, processing_status,
		       vector_id, attempts, last_error, created_at, updated_at
		FROM films WHERE external_id = ?`, externalID)

	f, err := scanFilm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// FilmExists reports whether the external ID is already in the catalog.
func (db *DB) FilmExists(ctx context.Context, externalID int64) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM films WHERE external_id = ?`, externalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check film existence: %w", err)
	}
	return n > 0, nil
}

// FindFilmsByTitle returns films whose title matches case-insensitively,
// used by duplicate detection and reference-title resolution.
func (db *DB) FindFilmsByTitle(ctx context.Context, title string) ([]models.Film, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT external_id, title, year, release_date, vote_average, vote_count,
		       popularity, genres, runtime, overview, original_language,
		       countries, keywords, in_classic_set, processing_status,
		       vector_id, attempts, last_error, created_at, updated_at
		FROM films WHERE lower(title) = lower(?)
		ORDER BY vote_count DESC`, title)
	if err != nil {
		return nil, fmt.Errorf("find films by title: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectFilms(rows)
}

// MarkProcessing claims a film for the current run. The conditional WHERE
// is a best-effort guard against two runs racing on the same film; the
// residual race between read and write is a documented open risk of the
// per-row UPDATE model.
func (db *DB) MarkProcessing(ctx context.Context, externalID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE films
		SET processing_status = 'processing', updated_at = CURRENT_TIMESTAMP
		WHERE external_id = ? AND processing_status != 'processing'`, externalID)
	if err != nil {
		return fmt.Errorf("mark processing %d: %w", externalID, err)
	}
	return nil
}

// MarkCompleted records a successful vector upload. vector_id and
// processing_status change together in one UPDATE; there is no window where
// only one of them is visible.
func (db *DB) MarkCompleted(ctx context.Context, externalID int64, vectorID string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE films
		SET processing_status = 'completed',
		    vector_id = ?,
		    last_error = '',
		    updated_at = CURRENT_TIMESTAMP
		WHERE external_id = ?`, vectorID, externalID)
	if err != nil {
		return fmt.Errorf("mark completed %d: %w", externalID, err)
	}
	return nil
}

// MarkFailed records a stage failure and bumps the attempt counter. The
// vector_id is cleared in the same statement to preserve the
// vector_id-iff-completed invariant.
func (db *DB) MarkFailed(ctx context.Context, externalID int64, cause string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE films
		SET processing_status = 'failed',
		    vector_id = NULL,
		    attempts = attempts + 1,
		    last_error = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE external_id = ?`, truncateError(cause), externalID)
	if err != nil {
		return fmt.Errorf("mark failed %d: %w", externalID, err)
	}
	return nil
}

// ListRetryableFailed returns failed films still under the attempt cap,
// for the administrative reprocess operation.
func (db *DB) ListRetryableFailed(ctx context.Context, limit int) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT external_id FROM films
		WHERE processing_status = 'failed' AND attempts < ?
		ORDER BY updated_at ASC
		LIMIT ?`, models.MaxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list retryable failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RepairVectorIDs re-derives missing vector identifiers for completed
// films. The derivation is a pure function of the external ID, so the
// operation is idempotent. Returns the number of repaired rows.
func (db *DB) RepairVectorIDs(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE films
		SET vector_id = 'film-' || CAST(external_id AS VARCHAR),
		    updated_at = CURRENT_TIMESTAMP
		WHERE processing_status = 'completed' AND vector_id IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("repair vector ids: %w", err)
	}
	return res.RowsAffected()
}

// ListStaleProcessing returns films claimed for processing whose last
// transition is older than the cutoff. A run that stopped early or
// crashed leaves its claims behind; the reconciler requeues them.
func (db *DB) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT external_id FROM films
		WHERE processing_status = 'processing' AND updated_at < ?
		ORDER BY updated_at ASC`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale processing: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByStatus returns film counts grouped by processing status.
func (db *DB) CountByStatus(ctx context.Context) (map[models.ProcessingStatus]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT processing_status, count(*) FROM films GROUP BY processing_status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.ProcessingStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.ProcessingStatus(status)] = n
	}
	return counts, rows.Err()
}

// GenreDistribution returns the share of the catalog each genre occupies,
// counting every genre a film carries. Shares can sum above 1 because films
// are multi-genre.
func (db *DB) GenreDistribution(ctx context.Context) (map[string]float64, error) {
	var total int64
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM films`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count films: %w", err)
	}
	if total == 0 {
		return map[string]float64{}, nil
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT genres FROM films`)
	if err != nil {
		return nil, fmt.Errorf("scan genres: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var genres []string
		if err := json.Unmarshal([]byte(raw), &genres); err != nil {
			continue // tolerate malformed legacy rows
		}
		for _, g := range genres {
			counts[g]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dist := make(map[string]float64, len(counts))
	for g, n := range counts {
		dist[g] = float64(n) / float64(total)
	}
	return dist, nil
}

// EraDistribution returns film counts per release-era bucket label.
func (db *DB) EraDistribution(ctx context.Context) (map[string]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CASE
			WHEN year < 1970 THEN 'pre-1970'
			WHEN year < 1990 THEN '1970-1989'
			WHEN year < 2000 THEN '1990-1999'
			WHEN year < 2016 THEN '2000-2015'
			WHEN year < 2023 THEN '2016-2022'
			ELSE '2023+'
		END AS era, count(*)
		FROM films GROUP BY era`)
	if err != nil {
		return nil, fmt.Errorf("era distribution: %w", err)
	}
	defer func() { _ = rows.Close() }()

	dist := make(map[string]int64)
	for rows.Next() {
		var era string
		var n int64
		if err := rows.Scan(&era, &n); err != nil {
			return nil, err
		}
		dist[era] = n
	}
	return dist, rows.Err()
}

// filmScanner abstracts *sql.Row and *sql.Rows for scanFilm.
type filmScanner interface {
	Scan(dest ...interface{}) error
}

func scanFilm(s filmScanner) (*models.Film, error) {
	var f models.Film
	var release sql.NullTime
	var vectorID sql.NullString
	var genres, countries, keywords string
	var status string

	err := s.Scan(&f.ExternalID, &f.Title, &f.Year, &release, &f.VoteAverage,
		&f.VoteCount, &f.Popularity, &genres, &f.Runtime, &f.Overview,
		&f.OriginalLanguage, &countries, &keywords, &f.InClassicSet, &status,
		&vectorID, &f.Attempts, &f.LastError, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}

	f.ProcessingStatus = models.ProcessingStatus(status)
	if release.Valid {
		f.ReleaseDate = release.Time
	}
	if vectorID.Valid {
		f.VectorID = vectorID.String
	}
	for _, col := range []struct {
		raw  string
		dest *[]string
	}{
		{genres, &f.Genres}, {countries, &f.Countries}, {keywords, &f.Keywords},
	} {
		if col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("unmarshal list column: %w", err)
		}
	}
	return &f, nil
}

func collectFilms(rows *sql.Rows) ([]models.Film, error) {
	var films []models.Film
	for rows.Next() {
		f, err := scanFilm(rows)
		if err != nil {
			return nil, err
		}
		films = append(films, *f)
	}
	return films, rows.Err()
}

func marshalLists(f *models.Film) (genres, countries, keywords string, err error) {
	for _, pair := range []struct {
		src  []string
		dest *string
	}{
		{f.Genres, &genres}, {f.Countries, &countries}, {f.Keywords, &keywords},
	} {
		src := pair.src
		if src == nil {
			src = []string{}
		}
		b, merr := json.Marshal(src)
		if merr != nil {
			return "", "", "", fmt.Errorf("marshal list column: %w", merr)
		}
		*pair.dest = string(b)
	}
	return genres, countries, keywords, nil
}

// truncateError bounds stored provider error messages.
func truncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > 1000 {
		return msg[:1000]
	}
	return msg
}
