// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package ratelimit enforces fixed-window request budgets per external
// service, backed by a durable BadgerDB counter store.
//
// The execution model has no sleep primitive, so the limiter never waits:
// Allow either admits the request or fails fast with ErrLimited, and the
// caller re-enters on a later run. Counters are durable so budgets hold
// across process restarts and across independent runs.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/metrics"
)

// ErrLimited is returned when the current window's budget is exhausted.
// It is a retryable condition: the caller must come back in a later
// invocation, not wait in this one.
var ErrLimited = errors.New("rate limit window exhausted")

// Service names for the per-service budgets.
const (
	ServiceCatalog     = "catalog"
	ServiceEmbedding   = "embedding"
	ServiceVectorIndex = "vector_index"
)

// keyPrefix namespaces limiter keys in the shared badger store.
const keyPrefix = "ratelimit:"

// conflictRetries bounds optimistic-transaction retries under contention.
const conflictRetries = 5

// Limiter counts requests per service in fixed time windows.
type Limiter struct {
	db     *badger.DB
	limits map[string]config.ServiceLimit

	// now is a seam for deterministic window boundaries in tests.
	now func() time.Time
}

// New creates a limiter over the given durable store.
func New(db *badger.DB, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		db: db,
		limits: map[string]config.ServiceLimit{
			ServiceCatalog:     cfg.Catalog,
			ServiceEmbedding:   cfg.Embedding,
			ServiceVectorIndex: cfg.VectorIndex,
		},
		now: time.Now,
	}
}

// OpenStore opens the BadgerDB used as the durable counter store.
func OpenStore(cfg config.BadgerConfig) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return db, nil
}

// Allow admits one request against the service's current window, or
// returns ErrLimited without incrementing when the budget is spent.
// It never blocks beyond the badger transaction itself.
func (l *Limiter) Allow(ctx context.Context, service string) error {
	limit, ok := l.limits[service]
	if !ok {
		return fmt.Errorf("unknown rate limit service %q", service)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := l.windowKey(service, limit.Window)

	for attempt := 0; ; attempt++ {
		err := l.db.Update(func(txn *badger.Txn) error {
			count, err := readCounter(txn, key)
			if err != nil {
				return err
			}
			if count >= int64(limit.Requests) {
				return ErrLimited
			}
			entry := badger.NewEntry(key, []byte(strconv.FormatInt(count+1, 10))).
				WithTTL(2 * limit.Window)
			return txn.SetEntry(entry)
		})

		if errors.Is(err, badger.ErrConflict) && attempt < conflictRetries {
			continue
		}
		if errors.Is(err, ErrLimited) {
			metrics.RateLimiterDeclined.WithLabelValues(service).Inc()
		}
		return err
	}
}

// Ping verifies the durable counter store is usable. Served by health
// checks; a limiter that cannot read its counters fails every Allow.
func (l *Limiter) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.db.View(func(_ *badger.Txn) error { return nil }); err != nil {
		return fmt.Errorf("counter store ping: %w", err)
	}
	return nil
}

// Remaining returns how many requests the service's current window still
// admits. The orchestrator checks this between sub-batches to stop early
// instead of starting work it cannot finish.
func (l *Limiter) Remaining(service string) (int, error) {
	limit, ok := l.limits[service]
	if !ok {
		return 0, fmt.Errorf("unknown rate limit service %q", service)
	}

	key := l.windowKey(service, limit.Window)

	var count int64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = readCounter(txn, key)
		return err
	})
	if err != nil {
		return 0, err
	}

	remaining := limit.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// windowKey derives the durable counter key for the service's current
// fixed window.
func (l *Limiter) windowKey(service string, window time.Duration) []byte {
	windowStart := l.now().Truncate(window).Unix()
	return []byte(keyPrefix + service + ":" + strconv.FormatInt(windowStart, 10))
}

// readCounter returns the counter value at key, 0 when absent.
func readCounter(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}

	var count int64
	err = item.Value(func(val []byte) error {
		parsed, perr := strconv.ParseInt(string(val), 10, 64)
		if perr != nil {
			return fmt.Errorf("corrupt counter value %q: %w", val, perr)
		}
		count = parsed
		return nil
	})
	return count, err
}
