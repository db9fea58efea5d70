// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/models"
)

// staleClaimAge is how long a film may sit in processing before its claim
// is considered abandoned. Comfortably longer than any single run budget,
// so an in-flight run is never swept out from under itself.
const staleClaimAge = 15 * time.Minute

// ReconcilerStore is the persistence surface the reconciler needs.
type ReconcilerStore interface {
	RepairVectorIDs(ctx context.Context) (int64, error)
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]int64, error)
	EnqueueFilms(ctx context.Context, externalIDs []int64, priority int) (int, error)
	CountByStatus(ctx context.Context) (map[models.ProcessingStatus]int64, error)
}

// ReconcileResult reports what a reconciliation pass found and fixed.
type ReconcileResult struct {
	RepairedVectorIDs int64                             `json:"repaired_vector_ids"`
	RequeuedStale     int                               `json:"requeued_stale"`
	StatusCounts      map[models.ProcessingStatus]int64 `json:"status_counts"`
}

// Reconciler repairs the known partial-state leftovers of interrupted
// runs. A crash between vector upsert and the status write can leave a
// completed film without its vector pointer; the vector ID is derivable
// from the external ID, so that repair is pure bookkeeping. A run that
// stopped early can also strand films in processing with no queue entry;
// those are requeued so the next run resumes them from the indexing stage.
type Reconciler struct {
	store ReconcilerStore

	// now is a seam for deterministic staleness cutoffs in tests.
	now func() time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(store ReconcilerStore) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Reconcile runs one repair pass and returns a status census.
func (r *Reconciler) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	repaired, err := r.store.RepairVectorIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("repair vector ids: %w", err)
	}
	if repaired > 0 {
		logging.Ctx(ctx).Warn().
			Int64("repaired", repaired).
			Msg("Repaired completed films missing their vector pointer")
	}

	stale, err := r.store.ListStaleProcessing(ctx, r.now().Add(-staleClaimAge))
	if err != nil {
		return nil, fmt.Errorf("list stale claims: %w", err)
	}
	if len(stale) > 0 {
		if _, err := r.store.EnqueueFilms(ctx, stale, 0); err != nil {
			return nil, fmt.Errorf("requeue stale claims: %w", err)
		}
		logging.Ctx(ctx).Warn().
			Int("requeued", len(stale)).
			Msg("Requeued films with abandoned processing claims")
	}

	counts, err := r.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("status census: %w", err)
	}

	return &ReconcileResult{
		RepairedVectorIDs: repaired,
		RequeuedStale:     len(stale),
		StatusCounts:      counts,
	}, nil
}
