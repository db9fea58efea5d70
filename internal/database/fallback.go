// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/vitascope/internal/models"
)

// FallbackFilter narrows the relational recommendation fallback. Zero
// values mean "no constraint".
type FallbackFilter struct {
	Genre      string
	MinYear    int
	MaxRuntime int
	MinRating  float64
	Limit      int
}

// FallbackRecommend is the always-available relational path used when no
// reference vector resolves: filter by genre/year/runtime/rating, order by
// popularity then rating. Strictly lower quality than the vector path.
func (db *DB) FallbackRecommend(ctx context.Context, f FallbackFilter) ([]models.Film, error) {
	if f.Limit <= 0 {
		f.Limit = 10
	}

	var conds []string
	var args []interface{}

	conds = append(conds, "processing_status != 'failed'")
	if f.Genre != "" {
		// Genres are stored as a JSON array string; a substring match on the
		// quoted name is sufficient for exact genre names.
		conds = append(conds, "genres LIKE ?")
		args = append(args, "%\""+f.Genre+"\"%")
	}
	if f.MinYear > 0 {
		conds = append(conds, "year >= ?")
		args = append(args, f.MinYear)
	}
	if f.MaxRuntime > 0 {
		conds = append(conds, "(runtime = 0 OR runtime <= ?)")
		args = append(args, f.MaxRuntime)
	}
	if f.MinRating > 0 {
		conds = append(conds, "vote_average >= ?")
		args = append(args, f.MinRating)
	}
	args = append(args, f.Limit)

	query := fmt.Sprintf(`
		SELECT external_id, title, year, release_date, vote_average, vote_count,
		       popularity, genres, runtime, overview, original_language,
		       countries, keywords, in_classic_set, processing_status,
		       vector_id, attempts, last_error, created_at, updated_at
		FROM films
		WHERE %s
		ORDER BY popularity DESC, vote_average DESC
		LIMIT ?`, strings.Join(conds, " AND "))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fallback recommend: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectFilms(rows)
}
