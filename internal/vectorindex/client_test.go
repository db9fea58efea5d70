// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/ratelimit"
)

func newTestIndex(t *testing.T, handler http.Handler, batchSize, batchFloor int) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := ratelimit.OpenStore(config.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	limiter := ratelimit.New(store, config.RateLimitConfig{
		VectorIndex: config.ServiceLimit{Requests: 1000, Window: time.Minute},
	})

	return NewClient(&config.VectorIndexConfig{
		URL:              srv.URL,
		APIKey:           "test-key",
		Timeout:          5 * time.Second,
		UpsertBatchSize:  batchSize,
		UpsertBatchFloor: batchFloor,
	}, limiter)
}

func makeVectors(n int) []Vector {
	out := make([]Vector, n)
	for i := range out {
		out[i] = Vector{
			ID:     fmt.Sprintf("film-%d", i+1),
			Values: []float32{float32(i), 1, 0},
		}
	}
	return out
}

func decodeUpsert(t *testing.T, r *http.Request) upsertRequest {
	t.Helper()
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode upsert request: %v", err)
	}
	return req
}

func TestUpsert_SingleBatchSuccess(t *testing.T) {
	var gotSizes []int
	c := newTestIndex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeUpsert(t, r)
		gotSizes = append(gotSizes, len(req.Vectors))
		fmt.Fprint(w, `{"upsertedCount": 5}`)
	}), 8, 2)

	result, err := c.Upsert(context.Background(), makeVectors(5))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(result.UpsertedIDs) != 5 || len(result.Failed) != 0 {
		t.Fatalf("result = %+v, want 5 upserted, 0 failed", result)
	}
	if len(gotSizes) != 1 || gotSizes[0] != 5 {
		t.Errorf("request sizes = %v, want [5]", gotSizes)
	}
}

func TestUpsert_HalvesUntilSuccess(t *testing.T) {
	// Fail any batch larger than 2; the client must split 8 -> 4 -> 2.
	var gotSizes []int
	c := newTestIndex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeUpsert(t, r)
		gotSizes = append(gotSizes, len(req.Vectors))
		if len(req.Vectors) > 2 {
			http.Error(w, `{"error": "payload too large"}`, http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"upsertedCount": 2}`)
	}), 8, 2)

	result, err := c.Upsert(context.Background(), makeVectors(8))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(result.UpsertedIDs) != 8 {
		t.Errorf("upserted = %d, want all 8", len(result.UpsertedIDs))
	}
	if len(result.Failed) != 0 {
		t.Errorf("failed = %+v, want none", result.Failed)
	}

	want := []int{8, 4, 2, 2, 4, 2, 2}
	if len(gotSizes) != len(want) {
		t.Fatalf("request sizes = %v, want %v", gotSizes, want)
	}
	for i := range want {
		if gotSizes[i] != want[i] {
			t.Fatalf("request sizes = %v, want %v", gotSizes, want)
		}
	}
}

func TestUpsert_SplitRetriesDoNotOpenBreaker(t *testing.T) {
	// A halving retry generates several failed requests before the halves
	// land. Those intermediate failures must not count against the
	// breaker: the batch as a whole succeeded, and the client must stay
	// usable afterwards.
	c := newTestIndex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/query" {
			fmt.Fprint(w, `{"matches": []}`)
			return
		}
		req := decodeUpsert(t, r)
		if len(req.Vectors) > 1 {
			http.Error(w, `{"error": "payload too large"}`, http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"upsertedCount": 1}`)
	}), 8, 1)

	result, err := c.Upsert(context.Background(), makeVectors(8))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(result.UpsertedIDs) != 8 || len(result.Failed) != 0 {
		t.Fatalf("result = %+v, want all 8 upserted", result)
	}

	// 7 of the 15 requests above failed; with per-request accounting the
	// breaker would be open by now and this query would never go out.
	if _, err := c.Query(context.Background(), []float32{1, 0, 0}, 3); err != nil {
		t.Fatalf("Query after split-heavy upsert: %v", err)
	}
}

func TestUpsert_FloorFailureMarksItemsFailed(t *testing.T) {
	c := newTestIndex(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "index unavailable"}`, http.StatusInternalServerError)
	}), 4, 2)

	result, err := c.Upsert(context.Background(), makeVectors(4))
	if err != nil {
		t.Fatalf("floor failures are reported in the result, not returned: %v", err)
	}
	if len(result.UpsertedIDs) != 0 {
		t.Errorf("upserted = %v, want none", result.UpsertedIDs)
	}
	if len(result.Failed) != 4 {
		t.Fatalf("failed = %d, want 4", len(result.Failed))
	}
	if result.Failed[0].Cause == "" {
		t.Error("failed items must carry the provider error")
	}
}

func TestUpsert_ProviderRateLimitAborts(t *testing.T) {
	calls := 0
	c := newTestIndex(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}), 4, 2)

	result, err := c.Upsert(context.Background(), makeVectors(8))
	if !errors.Is(err, ErrProviderLimited) {
		t.Fatalf("expected ErrProviderLimited, got %v", err)
	}
	// No halving retry against a rate-limited provider, and the remaining
	// items are left pending rather than marked failed.
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1", calls)
	}
	if len(result.Failed) != 0 {
		t.Errorf("failed = %+v, want none", result.Failed)
	}
}

func TestQuery(t *testing.T) {
	c := newTestIndex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode query: %v", err)
		}
		if req.TopK != 3 || !req.IncludeMetadata {
			t.Errorf("query = %+v", req)
		}
		fmt.Fprint(w, `{"matches": [
			{"id": "film-1", "score": 0.92, "metadata": {"title": "First"}},
			{"id": "film-2", "score": 0.71}
		]}`)
	}), 8, 2)

	matches, err := c.Query(context.Background(), []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].ID != "film-1" || matches[0].Score != 0.92 {
		t.Errorf("first match = %+v", matches[0])
	}
	if matches[0].Metadata["title"] != "First" {
		t.Errorf("metadata = %v", matches[0].Metadata)
	}
}

func TestFetch(t *testing.T) {
	c := newTestIndex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query()["ids"]; len(got) != 2 {
			t.Errorf("ids = %v, want 2 entries", got)
		}
		fmt.Fprint(w, `{"vectors": {"film-1": {"id": "film-1", "values": [0.1, 0.2, 0.3]}}}`)
	}), 8, 2)

	vectors, err := c.Fetch(context.Background(), []string{"film-1", "film-404"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("vectors = %d, want 1 (absent IDs are not errors)", len(vectors))
	}
	if v, ok := vectors["film-1"]; !ok || len(v.Values) != 3 {
		t.Errorf("vectors = %+v", vectors)
	}
}

func TestFetch_EmptyIDs(t *testing.T) {
	c := newTestIndex(t, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("empty fetch must not reach the provider")
	}), 8, 2)

	vectors, err := c.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("vectors = %v, want empty", vectors)
	}
}

func TestStats(t *testing.T) {
	c := newTestIndex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/describe_index_stats" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"totalVectorCount": 1234, "dimension": 1536}`)
	}), 8, 2)

	stats, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.VectorCount != 1234 || stats.Dimension != 1536 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUpsert_LocalLimiterDeclines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("request must not reach the provider when the budget is spent")
	}))
	t.Cleanup(srv.Close)

	store, err := ratelimit.OpenStore(config.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	limiter := ratelimit.New(store, config.RateLimitConfig{
		VectorIndex: config.ServiceLimit{Requests: 0, Window: time.Minute},
	})
	c := NewClient(&config.VectorIndexConfig{
		URL: srv.URL, Timeout: time.Second, UpsertBatchSize: 4, UpsertBatchFloor: 2,
	}, limiter)

	_, err = c.Upsert(context.Background(), makeVectors(2))
	if !errors.Is(err, ratelimit.ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
}
