// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := ratelimit.OpenStore(config.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	limiter := ratelimit.New(store, config.RateLimitConfig{
		Catalog:     config.ServiceLimit{Requests: 100, Window: time.Minute},
		Embedding:   config.ServiceLimit{Requests: 100, Window: time.Minute},
		VectorIndex: config.ServiceLimit{Requests: 100, Window: time.Minute},
	})

	c := NewClient(&config.CatalogConfig{
		URL:         srv.URL,
		APIKey:      "test-key",
		Timeout:     5 * time.Second,
		MinAgeYears: 2,
	}, limiter)
	// Pin the clock so age checks are deterministic.
	c.admission.Now = func() time.Time {
		return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	return c
}

const admissibleFilmBody = `{
	"id": 603,
	"title": "The Matrix",
	"release_date": "1999-03-31",
	"vote_average": 8.2,
	"vote_count": 26000,
	"popularity": 85.3,
	"runtime": 136,
	"overview": "A computer hacker learns the true nature of reality.",
	"original_language": "en",
	"genres": [{"name": "Action"}, {"name": "Science Fiction"}],
	"production_countries": [{"name": "United States of America"}],
	"keywords": {"keywords": [{"name": "dystopia"}, {"name": "simulation"}]},
	"belongs_to_collection": {"name": "The Matrix Collection"}
}`

func TestFetchFilm_AdmissibleCandidate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer test-key", got)
		}
		if !strings.Contains(r.URL.RawQuery, "append_to_response=keywords") {
			t.Errorf("detail request missing keywords append: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, admissibleFilmBody)
	}))

	film, err := c.FetchFilm(context.Background(), 603)
	if err != nil {
		t.Fatalf("FetchFilm: %v", err)
	}
	if film == nil {
		t.Fatal("expected an admissible candidate, got nil")
	}
	if film.Title != "The Matrix" || film.Year != 1999 {
		t.Errorf("got %q (%d), want The Matrix (1999)", film.Title, film.Year)
	}
	if len(film.Genres) != 2 || film.Genres[0] != "Action" {
		t.Errorf("genres = %v, want [Action Science Fiction]", film.Genres)
	}
	if len(film.Keywords) != 2 {
		t.Errorf("keywords = %v, want two entries", film.Keywords)
	}
	if !film.InClassicSet {
		t.Error("collection membership should mark the film as classic-set")
	}
}

func TestFetchFilm_FilteredCandidateReturnsNilNil(t *testing.T) {
	// Strong numbers but too recent: filtered out, not an error.
	body := `{
		"id": 1001,
		"title": "Fresh Release",
		"release_date": "2025-05-01",
		"vote_average": 9.0,
		"vote_count": 80000,
		"runtime": 120,
		"genres": [{"name": "Drama"}]
	}`
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))

	film, err := c.FetchFilm(context.Background(), 1001)
	if err != nil {
		t.Fatalf("filtered candidate should not error: %v", err)
	}
	if film != nil {
		t.Errorf("filtered candidate should return nil, got %+v", film)
	}
}

func TestFetchFilm_AdultContentDropped(t *testing.T) {
	body := `{"id": 7, "title": "X", "adult": true, "release_date": "1990-01-01",
		"vote_average": 8.0, "vote_count": 90000, "runtime": 100}`
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))

	film, err := c.FetchFilm(context.Background(), 7)
	if err != nil {
		t.Fatalf("adult candidate should not error: %v", err)
	}
	if film != nil {
		t.Error("adult candidate should be dropped")
	}
}

func TestFetchFilm_ProviderRateLimit(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.FetchFilm(context.Background(), 603)
	if !errors.Is(err, ErrProviderLimited) {
		t.Fatalf("expected ErrProviderLimited, got %v", err)
	}
}

func TestFetchFilm_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.FetchFilm(context.Background(), 999999)
	if !errors.Is(err, ErrFilmNotFound) {
		t.Fatalf("expected ErrFilmNotFound, got %v", err)
	}
}

func TestFetchFilm_LocalLimiterDeclines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("request must not reach the provider when the local budget is spent")
	}))
	t.Cleanup(srv.Close)

	store, err := ratelimit.OpenStore(config.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	limiter := ratelimit.New(store, config.RateLimitConfig{
		Catalog: config.ServiceLimit{Requests: 0, Window: time.Minute},
	})
	c := NewClient(&config.CatalogConfig{URL: srv.URL, Timeout: time.Second, MinAgeYears: 2}, limiter)

	_, err = c.FetchFilm(context.Background(), 603)
	if !errors.Is(err, ratelimit.ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
}

func TestDiscoverFilms(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/discover/movie") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("page"); got != "3" {
			t.Errorf("page = %q, want 3", got)
		}
		fmt.Fprint(w, `{"results": [{"id": 11}, {"id": 22}, {"id": 33}]}`)
	}))

	ids, err := c.DiscoverFilms(context.Background(), 3)
	if err != nil {
		t.Fatalf("DiscoverFilms: %v", err)
	}
	want := []int64{11, 22, 33}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}
