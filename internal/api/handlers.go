// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/vitascope/internal/curator"
	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/models"
	"github.com/tomtom215/vitascope/internal/pipeline"
	"github.com/tomtom215/vitascope/internal/recommend"
	"github.com/tomtom215/vitascope/internal/vectorindex"
)

// Store is the persistence surface the handlers need for observability
// and queue management.
type Store interface {
	Ping(ctx context.Context) error
	QueueDepth(ctx context.Context) (int64, error)
	ClearQueue(ctx context.Context, clearType string) (int64, error)
	CountByStatus(ctx context.Context) (map[models.ProcessingStatus]int64, error)
	GenreDistribution(ctx context.Context) (map[string]float64, error)
	EraDistribution(ctx context.Context) (map[string]int64, error)
	GetDailyMetrics(ctx context.Context, day string) (*models.DailyMetrics, error)
	RecentCurationLog(ctx context.Context, limit int) ([]models.CurationLogEntry, error)
}

// Pipeline is the orchestration surface the handlers drive.
type Pipeline interface {
	ProcessItems(ctx context.Context, ids []int64) (*pipeline.Result, error)
	ProcessQueue(ctx context.Context, max int) (*pipeline.Result, error)
	RetryFailed(ctx context.Context, limit int) (*pipeline.Result, error)
	Enqueue(ctx context.Context, ids []int64, priority int) (int, error)
}

// CurationService is the curator surface the handlers expose.
type CurationService interface {
	Evaluate(ctx context.Context, f *models.Film, source string) (*models.Decision, error)
	Suggest(ctx context.Context) (*curator.Suggestions, error)
}

// Recommender is the recommendation surface the handlers expose.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Result, error)
	Search(ctx context.Context, query string, limit int) ([]recommend.Recommendation, error)
}

// Pinger is the liveness surface of the durable counter store backing the
// rate limiter.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves all HTTP endpoints.
type Handler struct {
	store       Store
	pipeline    Pipeline
	curator     CurationService
	recommender Recommender
	index       vectorindex.Index
	counters    Pinger
	runBudget   time.Duration
}

// NewHandler creates the endpoint handler. runBudget bounds synchronous
// pipeline runs triggered over HTTP.
func NewHandler(store Store, p Pipeline, c CurationService, r Recommender, index vectorindex.Index, counters Pinger, runBudget time.Duration) *Handler {
	return &Handler{
		store:       store,
		pipeline:    p,
		curator:     c,
		recommender: r,
		index:       index,
		counters:    counters,
		runBudget:   runBudget,
	}
}

// Search handles POST /search: semantic text search over the index.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.recommender.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// Recommend handles POST /recommend: preference-vector recommendations.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Loved)+len(req.Liked)+len(req.Disliked) == 0 {
		writeError(w, http.StatusBadRequest, "at least one of loved, liked, or disliked is required")
		return
	}

	result, err := h.recommender.Recommend(r.Context(), recommend.Request{
		Loved:      req.Loved,
		Liked:      req.Liked,
		Disliked:   req.Disliked,
		MinYear:    req.MinYear,
		MaxRuntime: req.MaxRuntime,
		MinRating:  req.MinRating,
		TopK:       req.TopK,
	})
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Process handles POST /process: an admin-triggered pipeline run, either
// synchronous with exact counts or asynchronous best-effort.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Sync {
		ctx, cancel := context.WithTimeout(r.Context(), h.runBudget)
		defer cancel()
		result, err := h.pipeline.ProcessItems(ctx, req.MovieIDs)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	h.startAsync(r, func(ctx context.Context) {
		if _, err := h.pipeline.ProcessItems(ctx, req.MovieIDs); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Async pipeline run failed")
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"started": true,
		"warning": "best-effort: the process may be evicted before the run completes; durable state resumes on the next run",
	})
}

// Evaluate handles POST /curator/evaluate: a single-item curation decision
// without running the rest of the pipeline.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MovieData.ExternalID <= 0 || req.MovieData.Title == "" {
		writeError(w, http.StatusBadRequest, "movieData requires external_id and title")
		return
	}

	source := req.Source
	if source == "" {
		source = "admin"
	}

	decision, err := h.curator.Evaluate(r.Context(), &req.MovieData, source)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// Suggestions handles GET /curator/suggestions: catalog coverage gaps.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	s, err := h.curator.Suggest(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// AddToQueue handles POST /add-to-queue.
func (h *Handler) AddToQueue(w http.ResponseWriter, r *http.Request) {
	var req addToQueueRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	added, err := h.pipeline.Enqueue(r.Context(), req.MovieIDs, req.Priority)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	depth, err := h.store.QueueDepth(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"added":       added,
		"queue_depth": depth,
	})
}

// ProcessQueue handles POST /process-queue: drain pending entries.
func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	var req processQueueRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Sync {
		ctx, cancel := context.WithTimeout(r.Context(), h.runBudget)
		defer cancel()
		result, err := h.pipeline.ProcessQueue(ctx, req.BatchSize)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	h.startAsync(r, func(ctx context.Context) {
		if _, err := h.pipeline.ProcessQueue(ctx, req.BatchSize); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Async queue run failed")
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"started": true,
		"warning": "best-effort: the process may be evicted before the run completes; durable state resumes on the next run",
	})
}

// ClearQueue handles POST /clear-queue.
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	var req clearQueueRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cleared, err := h.store.ClearQueue(r.Context(), req.ClearType)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cleared":    cleared,
		"clear_type": req.ClearType,
	})
}

// RetryFailed handles POST /retry-failed: re-submit failed items under the
// attempt cap.
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	var req retryFailedRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.runBudget)
	defer cancel()
	result, err := h.pipeline.RetryFailed(ctx, req.Limit)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Stats handles GET /stats: a catalog and pipeline census.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	statuses, err := h.store.CountByStatus(ctx)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	depth, err := h.store.QueueDepth(ctx)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	genres, err := h.store.GenreDistribution(ctx)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	eras, err := h.store.EraDistribution(ctx)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	today, err := h.store.GetDailyMetrics(ctx, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	recent, err := h.store.RecentCurationLog(ctx, 20)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	stats := map[string]any{
		"statuses":        statuses,
		"queue_depth":     depth,
		"genres":          genres,
		"eras":            eras,
		"today":           today,
		"recent_activity": recent,
	}

	// Index stats are best effort; the relational census is still useful
	// when the index is unreachable.
	if indexStats, err := h.index.Stats(ctx); err == nil {
		stats["vector_index"] = indexStats
	} else {
		logging.Ctx(ctx).Warn().Err(err).Msg("Vector index stats unavailable")
	}

	writeJSON(w, http.StatusOK, stats)
}

// Health handles GET /health. Both durable stores must answer: the
// relational catalog and the rate-limit counter store. Breaker states are
// exposed on /metrics, not here.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{
		"database":      "ok",
		"counter_store": "ok",
	}
	healthy := true
	if err := h.store.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.counters.Ping(ctx); err != nil {
		checks["counter_store"] = err.Error()
		healthy = false
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"checks": checks,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"checks": checks,
	})
}

// startAsync launches best-effort background work detached from the
// request's cancellation but still bounded by the run budget. There is no
// durable task queue behind this: eviction mid-run is absorbed by the
// per-item durable state, not by redelivery.
func (h *Handler) startAsync(r *http.Request, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.runBudget)
	go func() {
		defer cancel()
		fn(ctx)
	}()
}
