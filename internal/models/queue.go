// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package models

import "time"

// QueueStatus tracks a queue entry independently of the film's own
// processing status, so interrupted runs can resume from durable state.
type QueueStatus string

const (
	// QueuePending means the entry has not been picked up yet.
	QueuePending QueueStatus = "pending"
	// QueueCompleted means the entry was folded into a pipeline run.
	// Completed entries are marked, not deleted; removal is a separate
	// administrative clear operation.
	QueueCompleted QueueStatus = "completed"
	// QueueFailed means the pipeline failed on this entry.
	QueueFailed QueueStatus = "failed"
)

// QueueEntry is one durable unit of pending pipeline work, unique per
// external ID.
type QueueEntry struct {
	ExternalID  int64       `json:"external_id"`
	Priority    int         `json:"priority"`
	Status      QueueStatus `json:"status"`
	AddedAt     time.Time   `json:"added_at"`
	ProcessedAt time.Time   `json:"processed_at,omitempty"`
}

// DailyMetrics is the per-calendar-day aggregation row written by every
// pipeline stage and read by monitoring.
type DailyMetrics struct {
	Day               string `json:"day"` // YYYY-MM-DD
	ItemsProcessed    int64  `json:"items_processed"`
	EmbeddingsCreated int64  `json:"embeddings_created"`
	VectorsUploaded   int64  `json:"vectors_uploaded"`
	ProviderRequests  int64  `json:"provider_requests"`
	Errors            int64  `json:"errors"`
}
