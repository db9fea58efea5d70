// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/vitascope/internal/config"
)

// NewRouter builds the HTTP routing tree. Endpoints are mounted both at
// the root and under /api/v1 so callers can use either form.
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(prometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", adminHeader, "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	mount := func(r chi.Router) {
		publicLimit := httprate.LimitByIP(cfg.Server.PublicRateLimit, time.Minute)
		admin := adminAuth(cfg.Security.AdminKey)

		// Public endpoints, per-IP rate limited.
		r.Group(func(r chi.Router) {
			r.Use(publicLimit)
			r.Post("/search", h.Search)
			r.Post("/recommend", h.Recommend)
			r.Get("/curator/suggestions", h.Suggestions)
			r.Get("/stats", h.Stats)
			r.Get("/health", h.Health)
		})

		// Admin endpoints, shared-key authenticated.
		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/process", h.Process)
			r.Post("/curator/evaluate", h.Evaluate)
			r.Post("/add-to-queue", h.AddToQueue)
			r.Post("/process-queue", h.ProcessQueue)
			r.Post("/clear-queue", h.ClearQueue)
			r.Post("/retry-failed", h.RetryFailed)
		})
	}

	mount(r)
	r.Route("/api/v1", mount)

	return r
}
