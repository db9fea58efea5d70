// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package recommend builds preference vectors from reference titles and
// queries the vector index for similar films.
//
// When no reference resolves to a vector the service degrades to a
// relational query ordered by popularity and rating: strictly worse
// results, but always available.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tomtom215/vitascope/internal/database"
	"github.com/tomtom215/vitascope/internal/embedding"
	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/models"
	"github.com/tomtom215/vitascope/internal/vectorindex"
)

// Preference weights and reference caps. Disliked references subtract.
const (
	weightLoved    = 1.0
	weightLiked    = 0.6
	weightDisliked = -0.5

	maxLoved    = 5
	maxLiked    = 5
	maxDisliked = 3
)

// similarityThreshold discards weak matches; below this the result is
// noise, not a recommendation.
const similarityThreshold = 0.7

// vectorIDPrefix mirrors the derivation in models.VectorID.
const vectorIDPrefix = "film-"

// Store is the persistence surface the recommender needs.
type Store interface {
	GetFilm(ctx context.Context, externalID int64) (*models.Film, error)
	FindFilmsByTitle(ctx context.Context, title string) ([]models.Film, error)
	FallbackRecommend(ctx context.Context, f database.FallbackFilter) ([]models.Film, error)
}

// Request is a preference-based recommendation query.
type Request struct {
	Loved    []string `json:"loved"`
	Liked    []string `json:"liked"`
	Disliked []string `json:"disliked"`

	MinYear    int     `json:"minYear,omitempty"`
	MaxRuntime int     `json:"maxRuntime,omitempty"`
	MinRating  float64 `json:"minRating,omitempty"`
	TopK       int     `json:"topK,omitempty"`
}

// Recommendation is one recommended film with its similarity score.
// Fallback results carry no score.
type Recommendation struct {
	ExternalID  int64    `json:"external_id"`
	Title       string   `json:"title"`
	Year        int      `json:"year"`
	Genres      []string `json:"genres,omitempty"`
	Runtime     int      `json:"runtime,omitempty"`
	VoteAverage float64  `json:"vote_average"`
	Score       float64  `json:"score,omitempty"`
}

// Result is a recommendation response. Source is "vector" or "fallback".
type Result struct {
	Source          string           `json:"source"`
	Recommendations []Recommendation `json:"recommendations"`
	Unresolved      []string         `json:"unresolved_titles,omitempty"`
}

// Service answers recommendation and semantic search queries.
type Service struct {
	store    Store
	embedder embedding.Embedder
	index    vectorindex.Index
}

// New creates a recommendation service.
func New(store Store, embedder embedding.Embedder, index vectorindex.Index) *Service {
	return &Service{store: store, embedder: embedder, index: index}
}

// Recommend builds the preference vector from the request's references and
// returns the closest films. References that resolve to stored films are
// excluded from the results.
func (s *Service) Recommend(ctx context.Context, req Request) (*Result, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	refs, excludeIDs, unresolved, err := s.resolveReferences(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(refs) == 0 {
		logging.Ctx(ctx).Info().
			Strs("unresolved", unresolved).
			Msg("No reference vectors resolved, using relational fallback")
		recs, err := s.fallback(ctx, req, topK)
		if err != nil {
			return nil, err
		}
		return &Result{Source: "fallback", Recommendations: recs, Unresolved: unresolved}, nil
	}

	query := WeightedAverage(refs)
	if query == nil {
		recs, err := s.fallback(ctx, req, topK)
		if err != nil {
			return nil, err
		}
		return &Result{Source: "fallback", Recommendations: recs, Unresolved: unresolved}, nil
	}

	// Over-fetch so threshold and reference filtering still leave topK.
	matches, err := s.index.Query(ctx, query, topK+len(excludeIDs)+5)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	recs := make([]Recommendation, 0, topK)
	for _, m := range matches {
		if m.Score < similarityThreshold {
			continue
		}
		if excludeIDs[m.ID] {
			continue
		}
		rec, ok := s.toRecommendation(ctx, m)
		if !ok {
			continue
		}
		if !matchesFilters(rec, req) {
			continue
		}
		recs = append(recs, rec)
		if len(recs) == topK {
			break
		}
	}

	return &Result{Source: "vector", Recommendations: recs, Unresolved: unresolved}, nil
}

// Search embeds free text and returns the closest films above the
// similarity threshold.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 10
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}

	matches, err := s.index.Query(ctx, vectors[0], limit)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	recs := make([]Recommendation, 0, len(matches))
	for _, m := range matches {
		if m.Score < similarityThreshold {
			continue
		}
		if rec, ok := s.toRecommendation(ctx, m); ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// resolveReferences turns the request's titles into weighted vectors.
// Stored vectors are fetched from the index; titles without one fall back
// to a fresh embedding. Titles that resolve to nothing are reported back.
func (s *Service) resolveReferences(ctx context.Context, req Request) ([]WeightedVector, map[string]bool, []string, error) {
	type ref struct {
		title  string
		weight float64
	}

	var refs []ref
	for _, t := range capTitles(req.Loved, maxLoved) {
		refs = append(refs, ref{t, weightLoved})
	}
	for _, t := range capTitles(req.Liked, maxLiked) {
		refs = append(refs, ref{t, weightLiked})
	}
	for _, t := range capTitles(req.Disliked, maxDisliked) {
		refs = append(refs, ref{t, weightDisliked})
	}

	var (
		resolved   []WeightedVector
		excludeIDs = map[string]bool{}
		unresolved []string
	)

	for _, r := range refs {
		values, vectorID, err := s.resolveTitle(ctx, r.title)
		if err != nil {
			return nil, nil, nil, err
		}
		if values == nil {
			unresolved = append(unresolved, r.title)
			continue
		}
		resolved = append(resolved, WeightedVector{Values: values, Weight: r.weight})
		if vectorID != "" {
			excludeIDs[vectorID] = true
		}
	}

	return resolved, excludeIDs, unresolved, nil
}

// resolveTitle finds a vector for one reference title: the stored vector
// when the film is indexed, otherwise a fresh embedding of the film's text
// (or of the bare title when the film is unknown).
func (s *Service) resolveTitle(ctx context.Context, title string) ([]float32, string, error) {
	films, err := s.store.FindFilmsByTitle(ctx, title)
	if err != nil {
		return nil, "", fmt.Errorf("resolve title %q: %w", title, err)
	}

	var film *models.Film
	for i := range films {
		if strings.EqualFold(films[i].Title, title) {
			film = &films[i]
			break
		}
	}

	if film != nil && film.VectorID != "" {
		stored, err := s.index.Fetch(ctx, []string{film.VectorID})
		if err != nil {
			return nil, "", fmt.Errorf("fetch vector for %q: %w", title, err)
		}
		if v, ok := stored[film.VectorID]; ok {
			return v.Values, film.VectorID, nil
		}
	}

	// No stored vector: embed on the fly so the reference still counts.
	text := title
	vectorID := ""
	if film != nil {
		text = embedding.BuildText(film)
		vectorID = models.VectorID(film.ExternalID)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		logging.Ctx(ctx).Warn().Str("title", title).Err(err).Msg("Fresh embedding for reference failed")
		return nil, "", nil
	}
	return vectors[0], vectorID, nil
}

// fallback runs the relational recommendation path.
func (s *Service) fallback(ctx context.Context, req Request, topK int) ([]Recommendation, error) {
	films, err := s.store.FallbackRecommend(ctx, database.FallbackFilter{
		MinYear:    req.MinYear,
		MaxRuntime: req.MaxRuntime,
		MinRating:  req.MinRating,
		Limit:      topK,
	})
	if err != nil {
		return nil, fmt.Errorf("relational fallback: %w", err)
	}

	recs := make([]Recommendation, 0, len(films))
	for _, f := range films {
		recs = append(recs, Recommendation{
			ExternalID:  f.ExternalID,
			Title:       f.Title,
			Year:        f.Year,
			Genres:      f.Genres,
			VoteAverage: f.VoteAverage,
		})
	}
	return recs, nil
}

// toRecommendation enriches one index match from the relational store.
// Matches whose film row is missing are skipped.
func (s *Service) toRecommendation(ctx context.Context, m vectorindex.Match) (Recommendation, bool) {
	externalID, err := parseVectorID(m.ID)
	if err != nil {
		logging.Ctx(ctx).Warn().Str("vector_id", m.ID).Msg("Skipping match with malformed vector ID")
		return Recommendation{}, false
	}

	f, err := s.store.GetFilm(ctx, externalID)
	if errors.Is(err, database.ErrNotFound) {
		return Recommendation{}, false
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Int64("external_id", externalID).Err(err).Msg("Skipping match, film lookup failed")
		return Recommendation{}, false
	}

	return Recommendation{
		ExternalID:  f.ExternalID,
		Title:       f.Title,
		Year:        f.Year,
		Genres:      f.Genres,
		Runtime:     f.Runtime,
		VoteAverage: f.VoteAverage,
		Score:       m.Score,
	}, true
}

// matchesFilters applies the request's relational constraints to a vector
// result.
func matchesFilters(rec Recommendation, req Request) bool {
	if req.MinYear > 0 && rec.Year < req.MinYear {
		return false
	}
	if req.MaxRuntime > 0 && rec.Runtime > req.MaxRuntime {
		return false
	}
	if req.MinRating > 0 && rec.VoteAverage < req.MinRating {
		return false
	}
	return true
}

// capTitles drops blank entries and enforces the per-list reference cap.
func capTitles(titles []string, limit int) []string {
	out := make([]string, 0, limit)
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out
}

// parseVectorID extracts the external ID from a vector identifier.
func parseVectorID(id string) (int64, error) {
	raw, ok := strings.CutPrefix(id, vectorIDPrefix)
	if !ok {
		return 0, fmt.Errorf("vector id %q lacks %q prefix", id, vectorIDPrefix)
	}
	return strconv.ParseInt(raw, 10, 64)
}
