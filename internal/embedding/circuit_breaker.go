// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package embedding

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/metrics"
	"github.com/tomtom215/vitascope/internal/ratelimit"
)

// CircuitBreakerEmbedder wraps an Embedder with a circuit breaker.
// Rate-limit declines do not count as provider failures.
type CircuitBreakerEmbedder struct {
	inner Embedder
	cb    *gobreaker.CircuitBreaker[[][]float32]
}

var _ Embedder = (*CircuitBreakerEmbedder)(nil)

// NewCircuitBreakerEmbedder wraps an embedder with breaker protection.
func NewCircuitBreakerEmbedder(inner Embedder) *CircuitBreakerEmbedder {
	const cbName = "embedding-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},

		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ratelimit.ErrLimited) ||
				errors.Is(err, ErrProviderLimited)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", breakerStateString(from)).
				Str("to", breakerStateString(to)).
				Msg("[CIRCUIT BREAKER] Embedding state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, breakerStateString(from), breakerStateString(to)).Inc()
		},
	})

	return &CircuitBreakerEmbedder{inner: inner, cb: cb}
}

// EmbedBatch embeds through the breaker.
func (e *CircuitBreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.cb.Execute(func() ([][]float32, error) {
		return e.inner.EmbedBatch(ctx, texts)
	})
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
