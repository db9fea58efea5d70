// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package api

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vitascope/internal/models"
)

// validate is the shared validator instance. Validator instances cache
// struct metadata, so one per process.
var validate = validator.New()

// searchRequest is the POST /search payload.
type searchRequest struct {
	Query string `json:"query" validate:"required,min=1,max=1000"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// recommendRequest is the POST /recommend payload. At least one reference
// list must be non-empty; the handler enforces that after decoding.
type recommendRequest struct {
	Loved    []string `json:"loved" validate:"omitempty,max=5,dive,min=1,max=500"`
	Liked    []string `json:"liked" validate:"omitempty,max=5,dive,min=1,max=500"`
	Disliked []string `json:"disliked" validate:"omitempty,max=3,dive,min=1,max=500"`

	MinYear    int     `json:"minYear" validate:"omitempty,min=1880,max=2100"`
	MaxRuntime int     `json:"maxRuntime" validate:"omitempty,min=1,max=1000"`
	MinRating  float64 `json:"minRating" validate:"omitempty,min=0,max=10"`
	TopK       int     `json:"topK" validate:"omitempty,min=1,max=100"`
}

// processRequest is the POST /process payload. Empty MovieIDs means drain
// the queue (or discover when the queue is empty).
type processRequest struct {
	MovieIDs []int64 `json:"movieIds" validate:"omitempty,max=500,dive,min=1"`
	Sync     bool    `json:"sync"`
}

// evaluateRequest is the POST /curator/evaluate payload.
type evaluateRequest struct {
	MovieData models.Film `json:"movieData" validate:"required"`
	Source    string      `json:"source" validate:"omitempty,max=100"`
}

// addToQueueRequest is the POST /add-to-queue payload.
type addToQueueRequest struct {
	MovieIDs []int64 `json:"movieIds" validate:"required,min=1,max=10000,dive,min=1"`
	Priority int     `json:"priority" validate:"omitempty,min=0,max=100"`
}

// processQueueRequest is the POST /process-queue payload.
type processQueueRequest struct {
	BatchSize int  `json:"batchSize" validate:"omitempty,min=1,max=1000"`
	Sync      bool `json:"sync"`
}

// clearQueueRequest is the POST /clear-queue payload.
type clearQueueRequest struct {
	ClearType string `json:"clearType" validate:"required,oneof=completed failed all"`
}

// retryFailedRequest is the POST /retry-failed payload.
type retryFailedRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=1000"`
}

// decodeAndValidate decodes a JSON body into dst and runs validation.
// Unknown fields are rejected so typos fail loudly instead of silently.
func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
