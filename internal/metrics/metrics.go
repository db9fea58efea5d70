// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package metrics provides Prometheus instrumentation for the curation
// pipeline, the external providers, and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline Metrics
	PipelineItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_items_total",
			Help: "Total pipeline items by curation outcome",
		},
		[]string{"outcome"}, // "accepted", "rejected", "duplicate", "queued", "failed"
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Duration of orchestrator runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PipelineRunsStopped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_stopped_total",
			Help: "Pipeline runs that stopped early, by reason",
		},
		[]string{"reason"}, // "budget", "rate_limited"
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_pending_entries",
			Help: "Current number of pending queue entries",
		},
	)

	// External Provider Metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total requests to external providers",
		},
		[]string{"service", "status"}, // status: "ok", "error", "rate_limited"
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Duration of external provider requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	RateLimiterDeclined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_declined_total",
			Help: "Requests declined by the fixed-window rate limiter",
		},
		[]string{"service"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Embedding / Vector Index Metrics
	EmbeddingBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_batches_total",
			Help: "Embedding batches by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	VectorUpsertBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vector_upsert_batch_size",
			Help:    "Effective vector upsert batch sizes after halving retries",
			Buckets: []float64{50, 100, 250, 500},
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
)

// ObserveProviderRequest records one external provider call.
func ObserveProviderRequest(service, status string, start time.Time) {
	ProviderRequestsTotal.WithLabelValues(service, status).Inc()
	ProviderRequestDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}
