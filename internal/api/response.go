// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package api provides the HTTP surface: public search and recommendation
// endpoints plus the admin-keyed pipeline and queue operations.
package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitascope/internal/logging"
)

// errorBody is the wire format for every error response.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes the standard error body: {"error": "..."}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeInternalError logs the real error and returns its message with a
// 500. Unexpected failures are surfaced, not swallowed.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Error().Err(err).
		Str("path", r.URL.Path).
		Msg("Request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}
