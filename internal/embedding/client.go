// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package embedding turns curated films into dense vectors via an external
// embedding provider.
//
// The provider is called once per batch, never per item; a batch failure
// is surfaced whole so the orchestrator can mark every item in it failed.
// No retry happens here: retrying is an explicit administrative operation,
// bounded by the per-item attempt cap.
package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/metrics"
	"github.com/tomtom215/vitascope/internal/ratelimit"
)

// ErrProviderLimited means the embedding provider returned a rate-limit
// response. Retryable on a later run, never delayed within this one.
var ErrProviderLimited = errors.New("embedding provider rate limited")

// Embedder produces vectors for batches of texts. Implemented by Client
// and its circuit-breaker wrapper.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

var _ Embedder = (*Client)(nil)

// Client talks to an OpenAI-compatible embeddings endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	batchSize  int
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient creates an embedding client. Every provider call consumes one
// request from the durable rate-limit budget.
func NewClient(cfg *config.EmbeddingConfig, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL:   cfg.URL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch embeds texts in configured-size batches, one provider call
// per batch, and returns the vectors in input order. Most callers hand in
// fewer texts than the batch size and pay exactly one call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.batchSize <= 0 || len(texts) <= c.batchSize {
		return c.embedOnce(ctx, texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// embedOnce embeds one batch in a single provider call, returning vectors
// in input order regardless of the order the provider responded in.
func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Allow(ctx, ratelimit.ServiceEmbedding); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveProviderRequest(ratelimit.ServiceEmbedding, "error", start)
		metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.ObserveProviderRequest(ratelimit.ServiceEmbedding, "rate_limited", start)
		metrics.EmbeddingBatchesTotal.WithLabelValues("rate_limited").Inc()
		return nil, ErrProviderLimited
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProviderRequest(ratelimit.ServiceEmbedding, "error", start)
		metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding provider returned status %d: %s", resp.StatusCode, string(body))
	}
	metrics.ObserveProviderRequest(ratelimit.ServiceEmbedding, "ok", start)

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("embedding provider returned out-of-range index %d", d.Index)
		}
		if c.dimension > 0 && len(d.Embedding) != c.dimension {
			metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("embedding dimension %d, expected %d", len(d.Embedding), c.dimension)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("embedding provider returned no vector for input %d", i)
		}
	}

	metrics.EmbeddingBatchesTotal.WithLabelValues("ok").Inc()
	return vectors, nil
}
