// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package pipeline orchestrates the film indexing pipeline: catalog fetch,
// curation, embedding, vector upsert.
//
// Every run operates under an invocation budget and checks remaining
// rate-limiter capacity between sub-batches, stopping early with a partial
// result instead of overrunning. All stage transitions are written to the
// relational store immediately per item, so an interrupted run resumes
// from durable state on the next invocation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/vitascope/internal/catalog"
	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/database"
	"github.com/tomtom215/vitascope/internal/embedding"
	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/metrics"
	"github.com/tomtom215/vitascope/internal/models"
	"github.com/tomtom215/vitascope/internal/ratelimit"
	"github.com/tomtom215/vitascope/internal/vectorindex"
)

// deadlineMargin is how much budget must remain before starting another
// sub-batch. A sub-batch that cannot finish should not start.
const deadlineMargin = 5 * time.Second

// Stop reasons for partial results.
const (
	StopRateLimited = "rate_limit_exhausted"
	StopTimeBudget  = "time_budget_exhausted"
	StopCanceled    = "canceled"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateFilm(ctx context.Context, f *models.Film) error
	GetFilm(ctx context.Context, externalID int64) (*models.Film, error)
	MarkProcessing(ctx context.Context, externalID int64) error
	MarkCompleted(ctx context.Context, externalID int64, vectorID string) error
	MarkFailed(ctx context.Context, externalID int64, cause string) error
	ListRetryableFailed(ctx context.Context, limit int) ([]int64, error)
	EnqueueFilms(ctx context.Context, externalIDs []int64, priority int) (int, error)
	NextQueueEntries(ctx context.Context, limit int) ([]models.QueueEntry, error)
	MarkQueueEntry(ctx context.Context, externalID int64, status models.QueueStatus) error
	QueueDepth(ctx context.Context) (int64, error)
	IncrementDaily(ctx context.Context, col database.DailyColumn, n int64) error
}

// Evaluator is the curation surface the orchestrator needs.
type Evaluator interface {
	Evaluate(ctx context.Context, f *models.Film, source string) (*models.Decision, error)
}

// Capacity reports remaining rate-limit budget between sub-batches.
type Capacity interface {
	Remaining(service string) (int, error)
}

// Result is the outcome of one pipeline run. When Stopped is true the run
// ended early and the remaining work stays durable for the next run.
type Result struct {
	Processed  int    `json:"processed"`
	Accepted   int    `json:"accepted"`
	Rejected   int    `json:"rejected"`
	Duplicates int    `json:"duplicates"`
	Queued     int    `json:"queued"`
	Failed     int    `json:"failed"`
	Stopped    bool   `json:"stopped"`
	StopReason string `json:"stop_reason,omitempty"`
}

// Orchestrator drives items through the pipeline stages.
type Orchestrator struct {
	store    Store
	catalog  catalog.Provider
	curator  Evaluator
	embedder embedding.Embedder
	index    vectorindex.Index
	capacity Capacity
	cfg      config.PipelineConfig
}

// New creates an orchestrator.
func New(store Store, provider catalog.Provider, evaluator Evaluator, embedder embedding.Embedder, index vectorindex.Index, capacity Capacity, cfg config.PipelineConfig) *Orchestrator {
	return &Orchestrator{
		store:    store,
		catalog:  provider,
		curator:  evaluator,
		embedder: embedder,
		index:    index,
		capacity: capacity,
		cfg:      cfg,
	}
}

// ProcessItems runs the pipeline. Explicit IDs are processed exactly as
// given; otherwise the queue is drained in priority-then-insertion order,
// and when the queue is empty fresh candidates are pulled from discovery.
// The returned result is partial when the run stopped early.
func (o *Orchestrator) ProcessItems(ctx context.Context, ids []int64) (*Result, error) {
	return o.run(ctx, func(res *Result) error {
		if len(ids) > 0 {
			return o.processExplicit(ctx, ids, res)
		}
		return o.processQueue(ctx, 0, true, res)
	})
}

// ProcessQueue drains up to max pending queue entries (0 = no cap). Unlike
// ProcessItems it never falls back to discovery: an empty queue is a no-op.
func (o *Orchestrator) ProcessQueue(ctx context.Context, max int) (*Result, error) {
	return o.run(ctx, func(res *Result) error {
		return o.processQueue(ctx, max, false, res)
	})
}

// run executes one instrumented pipeline invocation.
func (o *Orchestrator) run(ctx context.Context, fn func(res *Result) error) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.PipelineRunDuration.Observe(time.Since(start).Seconds())
		o.publishQueueDepth(ctx)
	}()

	res := &Result{}
	if err := fn(res); err != nil {
		return res, err
	}

	if res.Stopped {
		metrics.PipelineRunsStopped.WithLabelValues(res.StopReason).Inc()
	}
	logging.Ctx(ctx).Info().
		Int("processed", res.Processed).
		Int("accepted", res.Accepted).
		Int("rejected", res.Rejected).
		Int("duplicates", res.Duplicates).
		Int("queued", res.Queued).
		Int("failed", res.Failed).
		Bool("stopped", res.Stopped).
		Str("stop_reason", res.StopReason).
		Dur("elapsed", time.Since(start)).
		Msg("Pipeline run finished")
	return res, nil
}

// RetryFailed re-submits failed items that are still under the attempt
// cap. This is the only retry path; nothing retries automatically.
func (o *Orchestrator) RetryFailed(ctx context.Context, limit int) (*Result, error) {
	if limit <= 0 {
		limit = o.cfg.SubBatchSize * 5
	}
	ids, err := o.store.ListRetryableFailed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list retryable items: %w", err)
	}
	if len(ids) == 0 {
		return &Result{}, nil
	}
	logging.Ctx(ctx).Info().Int("count", len(ids)).Msg("Retrying failed items")
	return o.ProcessItems(ctx, ids)
}

// Enqueue adds items to the durable queue for later processing.
func (o *Orchestrator) Enqueue(ctx context.Context, ids []int64, priority int) (int, error) {
	n, err := o.store.EnqueueFilms(ctx, ids, priority)
	if err != nil {
		return 0, fmt.Errorf("enqueue films: %w", err)
	}
	o.publishQueueDepth(ctx)
	return n, nil
}

// processExplicit runs the given IDs through the pipeline in sub-batches.
func (o *Orchestrator) processExplicit(ctx context.Context, ids []int64, res *Result) error {
	for start := 0; start < len(ids); start += o.cfg.SubBatchSize {
		if reason := o.shouldStop(ctx); reason != "" {
			res.Stopped = true
			res.StopReason = reason
			return nil
		}
		end := start + o.cfg.SubBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := o.processSubBatch(ctx, ids[start:end], "admin", false, res); err != nil {
			return err
		}
		if res.Stopped {
			return nil
		}
	}
	return nil
}

// processQueue drains pending queue entries in priority-then-insertion
// order, up to max entries (0 = no cap). When the queue was empty and
// discoverWhenEmpty is set, one discovery page of fresh candidates is
// pulled instead.
func (o *Orchestrator) processQueue(ctx context.Context, max int, discoverWhenEmpty bool, res *Result) error {
	drained := false
	taken := 0
	// Entries the curator re-defers stay pending; tracking what this run
	// already touched keeps the drain loop from spinning on them.
	seen := map[int64]bool{}
	for max <= 0 || taken < max {
		if reason := o.shouldStop(ctx); reason != "" {
			res.Stopped = true
			res.StopReason = reason
			return nil
		}

		want := o.cfg.SubBatchSize
		if max > 0 && max-taken < want {
			want = max - taken
		}
		// Re-deferred entries stay pending and can occupy the head of the
		// priority order, so over-fetch by the number of entries this run
		// has already touched and filter them out. The loop ends only when
		// the queue holds nothing new.
		entries, err := o.store.NextQueueEntries(ctx, want+len(seen))
		if err != nil {
			return fmt.Errorf("next queue entries: %w", err)
		}

		ids := make([]int64, 0, want)
		for _, e := range entries {
			if seen[e.ExternalID] {
				continue
			}
			seen[e.ExternalID] = true
			ids = append(ids, e.ExternalID)
			if len(ids) == want {
				break
			}
		}
		if len(ids) == 0 {
			break
		}
		drained = true
		taken += len(ids)

		if err := o.processSubBatch(ctx, ids, "queue", true, res); err != nil {
			return err
		}
		if res.Stopped {
			return nil
		}
	}

	if !drained && discoverWhenEmpty && !res.Stopped {
		return o.discover(ctx, res)
	}
	return nil
}

// discover pulls one page of fresh candidates and runs them immediately.
func (o *Orchestrator) discover(ctx context.Context, res *Result) error {
	ids, err := o.catalog.DiscoverFilms(ctx, 1)
	if err != nil {
		if isCapacityError(err) {
			res.Stopped = true
			res.StopReason = StopRateLimited
			return nil
		}
		return fmt.Errorf("discover candidates: %w", err)
	}
	if len(ids) > o.cfg.DiscoverPageSize {
		ids = ids[:o.cfg.DiscoverPageSize]
	}
	logging.Ctx(ctx).Info().Int("candidates", len(ids)).Msg("Queue empty, processing discovery page")
	return o.processExplicitSource(ctx, ids, "discovery", res)
}

func (o *Orchestrator) processExplicitSource(ctx context.Context, ids []int64, source string, res *Result) error {
	for start := 0; start < len(ids); start += o.cfg.SubBatchSize {
		if reason := o.shouldStop(ctx); reason != "" {
			res.Stopped = true
			res.StopReason = reason
			return nil
		}
		end := start + o.cfg.SubBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := o.processSubBatch(ctx, ids[start:end], source, false, res); err != nil {
			return err
		}
		if res.Stopped {
			return nil
		}
	}
	return nil
}

// processSubBatch runs one sub-batch through fetch, curation, embedding,
// and upsert. Item failures are isolated: one bad item never aborts its
// neighbors.
func (o *Orchestrator) processSubBatch(ctx context.Context, ids []int64, source string, fromQueue bool, res *Result) error {
	accepted := make([]*models.Film, 0, len(ids))

	for _, id := range ids {
		film, outcome, err := o.curateOne(ctx, id, source)
		if err != nil {
			// Capacity errors end the run; anything else fails the item
			// and moves on.
			if isCapacityError(err) {
				res.Stopped = true
				res.StopReason = StopRateLimited
				return nil
			}
			logging.Ctx(ctx).Warn().Int64("external_id", id).Err(err).Msg("Item failed during curation stage")
			outcome = "failed"
			o.noteDailyError(ctx)
		}

		res.Processed++
		o.countOutcome(res, outcome)
		metrics.PipelineItemsTotal.WithLabelValues(outcome).Inc()
		_ = o.store.IncrementDaily(ctx, database.DailyItemsProcessed, 1)

		if fromQueue {
			o.finishQueueEntry(ctx, id, outcome)
		}
		if outcome == "accepted" {
			accepted = append(accepted, film)
		}
	}

	if len(accepted) == 0 {
		return nil
	}
	return o.indexFilms(ctx, accepted, res)
}

// curateOne fetches and curates a single candidate, returning the film
// (for accepted items) and the outcome label.
func (o *Orchestrator) curateOne(ctx context.Context, id int64, source string) (*models.Film, string, error) {
	// Already-stored films skip curation: a completed film is done, and
	// anything else is the retry/resume path going straight back to the
	// indexing stages.
	existing, err := o.store.GetFilm(ctx, id)
	if err == nil {
		if existing.ProcessingStatus == models.StatusCompleted {
			return nil, "duplicate", nil
		}
		if err := o.store.MarkProcessing(ctx, id); err != nil {
			return nil, "", fmt.Errorf("claim film: %w", err)
		}
		return existing, "accepted", nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, "", fmt.Errorf("look up film: %w", err)
	}

	film, err := o.catalog.FetchFilm(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if film == nil {
		// Filtered out by hard admission rules; no record anywhere.
		return nil, "rejected", nil
	}

	decision, err := o.curator.Evaluate(ctx, film, source)
	if err != nil {
		return nil, "", fmt.Errorf("curator: %w", err)
	}

	switch decision.Action {
	case models.ActionAccept:
		if err := o.store.CreateFilm(ctx, film); err != nil {
			return nil, "", fmt.Errorf("create film: %w", err)
		}
		if err := o.store.MarkProcessing(ctx, film.ExternalID); err != nil {
			return nil, "", fmt.Errorf("claim film: %w", err)
		}
		return film, "accepted", nil

	case models.ActionQueue:
		// Accepted in principle, deferred for genre balance. Low priority
		// so fresh accepts drain first.
		if _, err := o.store.EnqueueFilms(ctx, []int64{film.ExternalID}, 0); err != nil {
			return nil, "", fmt.Errorf("defer to queue: %w", err)
		}
		return nil, "queued", nil

	case models.ActionDuplicate:
		return nil, "duplicate", nil

	default:
		return nil, "rejected", nil
	}
}

// indexFilms embeds and upserts accepted films, writing each item's final
// status immediately.
func (o *Orchestrator) indexFilms(ctx context.Context, films []*models.Film, res *Result) error {
	texts := make([]string, len(films))
	for i, f := range films {
		texts[i] = embedding.BuildText(f)
	}

	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// A batch failure fails every item in it with the provider error;
		// the administrative retry path re-submits them later, under the
		// attempt cap. Capacity errors additionally end the run.
		if isCapacityError(err) {
			res.Stopped = true
			res.StopReason = StopRateLimited
		}
		o.failFilms(ctx, films, err, res)
		return nil
	}
	_ = o.store.IncrementDaily(ctx, database.DailyEmbeddingsCreated, int64(len(vectors)))

	entries := make([]vectorindex.Vector, len(films))
	byVectorID := make(map[string]*models.Film, len(films))
	for i, f := range films {
		vid := models.VectorID(f.ExternalID)
		entries[i] = vectorindex.Vector{
			ID:     vid,
			Values: vectors[i],
			Metadata: map[string]any{
				"title":  f.Title,
				"year":   f.Year,
				"genre":  f.PrimaryGenre(),
				"rating": f.VoteAverage,
			},
		}
		byVectorID[vid] = f
	}

	result, err := o.index.Upsert(ctx, entries)
	if result == nil {
		result = &vectorindex.UpsertResult{}
	}
	if err != nil && !isCapacityError(err) {
		o.failFilms(ctx, films, err, res)
		return nil
	}
	if err != nil {
		res.Stopped = true
		res.StopReason = StopRateLimited
	}

	for _, vid := range result.UpsertedIDs {
		f := byVectorID[vid]
		if f == nil {
			continue
		}
		// vector_id and completed status land in one UPDATE so a crash
		// can never leave a completed film without its vector pointer.
		if dbErr := o.store.MarkCompleted(ctx, f.ExternalID, vid); dbErr != nil {
			logging.Ctx(ctx).Error().Int64("external_id", f.ExternalID).Err(dbErr).Msg("Failed to mark film completed")
			continue
		}
		res.Accepted++
		delete(byVectorID, vid)
	}
	_ = o.store.IncrementDaily(ctx, database.DailyVectorsUploaded, int64(len(result.UpsertedIDs)))

	for _, fail := range result.Failed {
		f := byVectorID[fail.ID]
		if f == nil {
			continue
		}
		o.failFilm(ctx, f, fail.Cause, res)
		delete(byVectorID, fail.ID)
	}

	// Anything left neither upserted nor failed was cut off by an early
	// stop; it stays claimed until the reconciler requeues the stale
	// claim and a later run resumes it from the indexing stage.
	return nil
}

// failFilms marks every film in the slice failed with the same cause.
func (o *Orchestrator) failFilms(ctx context.Context, films []*models.Film, cause error, res *Result) {
	for _, f := range films {
		o.failFilm(ctx, f, cause.Error(), res)
	}
}

func (o *Orchestrator) failFilm(ctx context.Context, f *models.Film, cause string, res *Result) {
	if err := o.store.MarkFailed(ctx, f.ExternalID, cause); err != nil {
		logging.Ctx(ctx).Error().Int64("external_id", f.ExternalID).Err(err).Msg("Failed to mark film failed")
	}
	res.Failed++
	metrics.PipelineItemsTotal.WithLabelValues("failed").Inc()
	o.noteDailyError(ctx)
}

// countOutcome maps an outcome label onto the result counters. Accepted
// items are counted later, once their vector is actually stored.
func (o *Orchestrator) countOutcome(res *Result, outcome string) {
	switch outcome {
	case "rejected":
		res.Rejected++
	case "duplicate":
		res.Duplicates++
	case "queued":
		res.Queued++
	case "failed":
		res.Failed++
	}
}

// finishQueueEntry resolves a queue entry according to its outcome.
// Queued outcomes re-enter the queue, so the entry stays pending.
func (o *Orchestrator) finishQueueEntry(ctx context.Context, id int64, outcome string) {
	var status models.QueueStatus
	switch outcome {
	case "failed":
		status = models.QueueFailed
	case "queued":
		return
	default:
		status = models.QueueCompleted
	}
	if err := o.store.MarkQueueEntry(ctx, id, status); err != nil {
		logging.Ctx(ctx).Error().Int64("external_id", id).Err(err).Msg("Failed to update queue entry")
	}
}

// shouldStop reports why the run must not start another sub-batch, or
// empty string to continue.
func (o *Orchestrator) shouldStop(ctx context.Context) string {
	if ctx.Err() != nil {
		return StopCanceled
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < deadlineMargin {
		return StopTimeBudget
	}
	for _, service := range []string{ratelimit.ServiceCatalog, ratelimit.ServiceEmbedding, ratelimit.ServiceVectorIndex} {
		remaining, err := o.capacity.Remaining(service)
		if err != nil {
			logging.Ctx(ctx).Warn().Str("service", service).Err(err).Msg("Capacity check failed")
			continue
		}
		if remaining <= 0 {
			return StopRateLimited
		}
	}
	return ""
}

func (o *Orchestrator) publishQueueDepth(ctx context.Context) {
	depth, err := o.store.QueueDepth(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.Set(float64(depth))
}

func (o *Orchestrator) noteDailyError(ctx context.Context) {
	_ = o.store.IncrementDaily(ctx, database.DailyErrors, 1)
}

// isCapacityError reports whether the error is a rate-limit decline, a
// provider rate limit, or budget exhaustion: conditions that end the run
// early but leave the remaining work for a later invocation.
func isCapacityError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ratelimit.ErrLimited),
		errors.Is(err, catalog.ErrProviderLimited),
		errors.Is(err, embedding.ErrProviderLimited),
		errors.Is(err, vectorindex.ErrProviderLimited),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return true
	default:
		return false
	}
}
