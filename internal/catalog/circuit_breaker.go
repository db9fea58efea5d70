// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package catalog

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/metrics"
	"github.com/tomtom215/vitascope/internal/models"
	"github.com/tomtom215/vitascope/internal/ratelimit"
)

// CircuitBreakerClient wraps Client with a circuit breaker so a failing
// catalog provider cannot cascade into every pipeline run.
//
// Rate-limit declines (ours or the provider's) and not-found responses are
// not provider failures and do not count toward opening the circuit.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// Ensure CircuitBreakerClient implements Provider.
var _ Provider = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps a catalog client with breaker protection.
// The circuit opens after a 60% failure rate over at least 10 requests,
// and probes again after 2 minutes.
func NewCircuitBreakerClient(client *Client) *CircuitBreakerClient {
	const cbName = "catalog-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening catalog circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ratelimit.ErrLimited) ||
				errors.Is(err, ErrProviderLimited) ||
				errors.Is(err, ErrFilmNotFound)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] Catalog state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: cbName}
}

// FetchFilm fetches one candidate through the breaker.
func (c *CircuitBreakerClient) FetchFilm(ctx context.Context, externalID int64) (*models.Film, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.client.FetchFilm(ctx, externalID)
	})
	if err != nil {
		return nil, err
	}
	film, _ := result.(*models.Film)
	return film, nil
}

// DiscoverFilms pulls candidate IDs through the breaker.
func (c *CircuitBreakerClient) DiscoverFilms(ctx context.Context, page int) ([]int64, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.client.DiscoverFilms(ctx, page)
	})
	if err != nil {
		return nil, err
	}
	ids, _ := result.([]int64)
	return ids, nil
}

// stateToString converts a breaker state to its log label.
func stateToString(state gobreaker.State) string {
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

// stateToFloat converts a breaker state to its metric value.
func stateToFloat(state gobreaker.State) float64 {
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
