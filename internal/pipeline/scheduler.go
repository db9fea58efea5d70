// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package pipeline

import (
	"context"
	"time"

	"github.com/tomtom215/vitascope/internal/logging"
)

// Runner is the pipeline surface the scheduler drives.
type Runner interface {
	ProcessItems(ctx context.Context, ids []int64) (*Result, error)
}

// Reconciling is the repair surface the scheduler drives.
type Reconciling interface {
	Reconcile(ctx context.Context) (*ReconcileResult, error)
}

// Scheduler ticks the pipeline on a fixed interval. Each tick is an
// independent invocation under its own time budget: the run either
// finishes or stops early with durable partial state, and the next tick
// resumes from wherever the last one left off.
//
// Scheduler implements suture.Service and is restarted by the supervision
// tree if a run panics.
type Scheduler struct {
	runner     Runner
	reconciler Reconciling
	interval   time.Duration
	budget     time.Duration
}

// NewScheduler creates a scheduler.
func NewScheduler(runner Runner, reconciler Reconciling, interval, budget time.Duration) *Scheduler {
	return &Scheduler{
		runner:     runner,
		reconciler: reconciler,
		interval:   interval,
		budget:     budget,
	}
}

// Serve runs scheduled pipeline ticks until the context is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Dur("budget", s.budget).
		Msg("Pipeline scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Pipeline scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes one scheduled invocation under the time budget.
func (s *Scheduler) runOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.budget)
	defer cancel()
	ctx = logging.ContextWithRequestID(ctx, logging.GenerateRequestID())

	if _, err := s.reconciler.Reconcile(ctx); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Scheduled reconcile failed")
	}

	if _, err := s.runner.ProcessItems(ctx, nil); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Scheduled pipeline run failed")
	}
}

func (s *Scheduler) String() string { return "pipeline-scheduler" }
