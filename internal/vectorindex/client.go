// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package vectorindex stores and queries film embeddings in an external
// vector index.
//
// Upserts run in batches with a halving retry: a failed batch is split in
// half and each half retried, down to a floor size. Items that still fail
// at the floor are reported back so the orchestrator can mark them failed
// individually; one poison vector never sinks a whole run.
package vectorindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/metrics"
	"github.com/tomtom215/vitascope/internal/ratelimit"
)

// ErrProviderLimited means the index provider returned a rate-limit
// response. Retryable on a later run, never delayed within this one.
var ErrProviderLimited = errors.New("vector index provider rate limited")

// Vector is one entry in the index.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is one query result.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stats summarizes the index.
type Stats struct {
	VectorCount int64 `json:"vector_count"`
	Dimension   int   `json:"dimension"`
}

// FailedUpsert names one vector that could not be stored and why.
type FailedUpsert struct {
	ID    string `json:"id"`
	Cause string `json:"cause"`
}

// UpsertResult reports which vectors made it into the index.
type UpsertResult struct {
	UpsertedIDs []string       `json:"upserted_ids"`
	Failed      []FailedUpsert `json:"failed,omitempty"`
}

// Index is the vector store surface the pipeline and recommender consume.
type Index interface {
	Upsert(ctx context.Context, vectors []Vector) (*UpsertResult, error)
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Fetch(ctx context.Context, ids []string) (map[string]Vector, error)
	Delete(ctx context.Context, ids []string) error
	Stats(ctx context.Context) (*Stats, error)
}

var _ Index = (*Client)(nil)

// Client talks to a Pinecone-compatible index endpoint. All calls go
// through the durable rate limiter and a circuit breaker; the breaker
// counts individual requests for read operations and whole batches for
// upserts, so the halving retry can run to the floor unimpeded.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	batchSize  int
	batchFloor int
	cb         *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a vector index client.
func NewClient(cfg *config.VectorIndexConfig, limiter *ratelimit.Limiter) *Client {
	const cbName = "vector-index-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
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
			switch {
			case err == nil,
				errors.Is(err, ErrProviderLimited),
				errors.Is(err, ratelimit.ErrLimited),
				errors.Is(err, context.Canceled),
				errors.Is(err, context.DeadlineExceeded):
				return true
			default:
				return false
			}
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateString(from)).
				Str("to", stateString(to)).
				Msg("[CIRCUIT BREAKER] Vector index state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateString(from), stateString(to)).Inc()
		},
	})

	return &Client{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		batchSize:  cfg.UpsertBatchSize,
		batchFloor: cfg.UpsertBatchFloor,
		cb:         cb,
	}
}

// errBatchFailed marks a top-level upsert batch that ended with floor-size
// failures. It only exists so the breaker can record the batch's final
// outcome; Upsert swallows it because the failures are already in the result.
var errBatchFailed = errors.New("upsert batch had floor-size failures")

// Upsert stores vectors in configured-size batches with halving retry.
// Rate-limit declines abort the whole operation so the remaining items
// stay pending for a later run; only genuine provider failures at the
// floor size end up in the Failed list.
//
// The breaker observes one outcome per top-level batch, never per split
// retry: a batch rescued by halving is a success, and the breaker cannot
// open halfway through the split and defeat the retry it is watching.
func (c *Client) Upsert(ctx context.Context, vectors []Vector) (*UpsertResult, error) {
	result := &UpsertResult{}
	for start := 0; start < len(vectors); start += c.batchSize {
		end := start + c.batchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		batch := vectors[start:end]

		_, err := c.cb.Execute(func() ([]byte, error) {
			failedBefore := len(result.Failed)
			if err := c.upsertWithSplit(ctx, batch, result); err != nil {
				return nil, err
			}
			if len(result.Failed) > failedBefore {
				return nil, errBatchFailed
			}
			return nil, nil
		})
		if err != nil && !errors.Is(err, errBatchFailed) {
			return result, err
		}
	}
	return result, nil
}

// upsertWithSplit tries one batch, splitting in half on failure until the
// floor size is reached. Floor-size failures are recorded, not returned.
func (c *Client) upsertWithSplit(ctx context.Context, batch []Vector, result *UpsertResult) error {
	metrics.VectorUpsertBatchSize.Observe(float64(len(batch)))

	err := c.upsertOnce(ctx, batch)
	if err == nil {
		for _, v := range batch {
			result.UpsertedIDs = append(result.UpsertedIDs, v.ID)
		}
		return nil
	}

	// Declines and cancellation are not batch-content problems: abort and
	// leave the remaining items for a later run.
	if errors.Is(err, ratelimit.ErrLimited) || errors.Is(err, ErrProviderLimited) || ctx.Err() != nil {
		return err
	}

	if len(batch) <= c.batchFloor {
		logging.Ctx(ctx).Warn().
			Int("batch_size", len(batch)).
			Err(err).
			Msg("Upsert batch failed at floor size, marking items failed")
		for _, v := range batch {
			result.Failed = append(result.Failed, FailedUpsert{ID: v.ID, Cause: err.Error()})
		}
		return nil
	}

	half := len(batch) / 2
	logging.Ctx(ctx).Debug().
		Int("batch_size", len(batch)).
		Int("retry_size", half).
		Msg("Upsert batch failed, halving and retrying")

	if err := c.upsertWithSplit(ctx, batch[:half], result); err != nil {
		return err
	}
	return c.upsertWithSplit(ctx, batch[half:], result)
}

type upsertRequest struct {
	Vectors []Vector `json:"vectors"`
}

// upsertOnce sends one batch directly through send, bypassing the
// breaker: Upsert records the whole batch's outcome instead.
func (c *Client) upsertOnce(ctx context.Context, batch []Vector) error {
	body, err := json.Marshal(upsertRequest{Vectors: batch})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	_, err = c.send(ctx, http.MethodPost, "/vectors/upsert", body)
	return err
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

// Query returns the topK nearest vectors with their similarity scores.
func (c *Client) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	body, err := c.post(ctx, "/query", queryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	var parsed queryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return parsed.Matches, nil
}

type fetchResponse struct {
	Vectors map[string]Vector `json:"vectors"`
}

// Fetch returns stored vectors by ID. Absent IDs are simply missing from
// the result map, not errors.
func (c *Client) Fetch(ctx context.Context, ids []string) (map[string]Vector, error) {
	if len(ids) == 0 {
		return map[string]Vector{}, nil
	}

	q := url.Values{}
	for _, id := range ids {
		q.Add("ids", id)
	}
	body, err := c.get(ctx, "/vectors/fetch?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var parsed fetchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode fetch response: %w", err)
	}
	if parsed.Vectors == nil {
		parsed.Vectors = map[string]Vector{}
	}
	return parsed.Vectors, nil
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

// Delete removes vectors by ID.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.post(ctx, "/vectors/delete", deleteRequest{IDs: ids})
	return err
}

type statsResponse struct {
	TotalVectorCount int64 `json:"totalVectorCount"`
	Dimension        int   `json:"dimension"`
}

// Stats returns index-wide counts.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	body, err := c.post(ctx, "/describe_index_stats", struct{}{})
	if err != nil {
		return nil, err
	}

	var parsed statsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}
	return &Stats{VectorCount: parsed.TotalVectorCount, Dimension: parsed.Dimension}, nil
}

// post sends a JSON request through the limiter and breaker.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.cb.Execute(func() ([]byte, error) {
		return c.send(ctx, http.MethodPost, path, body)
	})
}

// get sends a GET request through the limiter and breaker.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.cb.Execute(func() ([]byte, error) {
		return c.send(ctx, http.MethodGet, path, nil)
	})
}

// send issues one request through the limiter. It does not touch the
// breaker: single-request operations reach it via post and get inside an
// Execute, while the upsert path records per-batch outcomes itself.
func (c *Client) send(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Allow(ctx, ratelimit.ServiceVectorIndex); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveProviderRequest(ratelimit.ServiceVectorIndex, "error", start)
		return nil, fmt.Errorf("vector index request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.ObserveProviderRequest(ratelimit.ServiceVectorIndex, "rate_limited", start)
		return nil, ErrProviderLimited
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProviderRequest(ratelimit.ServiceVectorIndex, "error", start)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vector index returned status %d: %s", resp.StatusCode, string(snippet))
	}
	metrics.ObserveProviderRequest(ratelimit.ServiceVectorIndex, "ok", start)

	return io.ReadAll(resp.Body)
}

func stateString(state gobreaker.State) string {
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

func stateFloat(state gobreaker.State) float64 {
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
