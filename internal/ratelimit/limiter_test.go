// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/vitascope/internal/config"
)

func newTestLimiter(t *testing.T, requests int, window time.Duration) *Limiter {
	t.Helper()

	db, err := OpenStore(config.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.RateLimitConfig{
		Catalog:     config.ServiceLimit{Requests: requests, Window: window},
		Embedding:   config.ServiceLimit{Requests: requests, Window: window},
		VectorIndex: config.ServiceLimit{Requests: requests, Window: window},
	}
	return New(db, cfg)
}

func TestAllow_ExactBudget(t *testing.T) {
	const budget = 10
	l := newTestLimiter(t, budget, time.Minute)

	// Pin the clock so the whole test runs inside one window.
	fixed := time.Date(2026, 3, 14, 12, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	ctx := context.Background()
	admitted := 0
	for i := 0; i < budget+7; i++ {
		err := l.Allow(ctx, ServiceCatalog)
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrLimited):
			// expected once the budget is spent
		default:
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}

	if admitted != budget {
		t.Errorf("admitted %d requests, want exactly %d", admitted, budget)
	}
}

func TestAllow_DeclinesWithoutConsuming(t *testing.T) {
	l := newTestLimiter(t, 2, time.Minute)
	fixed := time.Date(2026, 3, 14, 12, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, ServiceEmbedding); err != nil {
			t.Fatalf("call %d should be admitted: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, ServiceEmbedding); !errors.Is(err, ErrLimited) {
			t.Fatalf("exhausted window should return ErrLimited, got %v", err)
		}
	}

	remaining, err := l.Remaining(ServiceEmbedding)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestAllow_NewWindowResetsBudget(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)

	current := time.Date(2026, 3, 14, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return current }

	ctx := context.Background()
	if err := l.Allow(ctx, ServiceVectorIndex); err != nil {
		t.Fatalf("first request should be admitted: %v", err)
	}
	if err := l.Allow(ctx, ServiceVectorIndex); !errors.Is(err, ErrLimited) {
		t.Fatalf("second request in window should be declined, got %v", err)
	}

	// Advance past the window boundary.
	current = current.Add(time.Minute)
	if err := l.Allow(ctx, ServiceVectorIndex); err != nil {
		t.Fatalf("request in fresh window should be admitted: %v", err)
	}
}

func TestAllow_ServicesAreIndependent(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)
	fixed := time.Date(2026, 3, 14, 12, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	ctx := context.Background()
	if err := l.Allow(ctx, ServiceCatalog); err != nil {
		t.Fatalf("catalog request should be admitted: %v", err)
	}
	if err := l.Allow(ctx, ServiceCatalog); !errors.Is(err, ErrLimited) {
		t.Fatalf("catalog should be exhausted, got %v", err)
	}
	// Exhausting catalog must not touch the embedding budget.
	if err := l.Allow(ctx, ServiceEmbedding); err != nil {
		t.Fatalf("embedding request should be admitted: %v", err)
	}
}

func TestAllow_UnknownService(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)
	if err := l.Allow(context.Background(), "no-such-service"); err == nil {
		t.Fatal("expected error for unknown service")
	}
}

func TestRemaining_FullWindow(t *testing.T) {
	l := newTestLimiter(t, 7, time.Minute)
	fixed := time.Date(2026, 3, 14, 12, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	remaining, err := l.Remaining(ServiceCatalog)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 7 {
		t.Errorf("remaining = %d, want 7", remaining)
	}

	if err := l.Allow(context.Background(), ServiceCatalog); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	remaining, err = l.Remaining(ServiceCatalog)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 6 {
		t.Errorf("remaining after one request = %d, want 6", remaining)
	}
}

func TestAllow_CanceledContext(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Allow(ctx, ServiceCatalog); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPing(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)

	if err := l.Ping(context.Background()); err != nil {
		t.Fatalf("Ping on open store: %v", err)
	}

	_ = l.db.Close()
	if err := l.Ping(context.Background()); err == nil {
		t.Fatal("Ping on closed store should fail")
	}
}
