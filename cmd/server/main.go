// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Command server runs the Vitascope API and the supervised pipeline
// scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/vitascope/internal/api"
	"github.com/tomtom215/vitascope/internal/catalog"
	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/curator"
	"github.com/tomtom215/vitascope/internal/database"
	"github.com/tomtom215/vitascope/internal/embedding"
	"github.com/tomtom215/vitascope/internal/logging"
	"github.com/tomtom215/vitascope/internal/pipeline"
	"github.com/tomtom215/vitascope/internal/ratelimit"
	"github.com/tomtom215/vitascope/internal/recommend"
	"github.com/tomtom215/vitascope/internal/supervisor"
	"github.com/tomtom215/vitascope/internal/vectorindex"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})
	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Starting Vitascope")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	counters, err := ratelimit.OpenStore(cfg.Badger)
	if err != nil {
		return fmt.Errorf("open rate-limit store: %w", err)
	}
	defer counters.Close()
	limiter := ratelimit.New(counters, cfg.RateLimit)

	provider := catalog.NewCircuitBreakerClient(catalog.NewClient(&cfg.Catalog, limiter))
	embedder := embedding.NewCircuitBreakerEmbedder(embedding.NewClient(&cfg.Embedding, limiter))
	index := vectorindex.NewClient(&cfg.VectorIndex, limiter)

	admission := catalog.Admission{MinAgeYears: cfg.Catalog.MinAgeYears}
	curationSvc := curator.New(db, cfg.Curator, admission)

	orchestrator := pipeline.New(db, provider, curationSvc, embedder, index, limiter, cfg.Pipeline)
	reconciler := pipeline.NewReconciler(db)
	recommender := recommend.New(db, embedder, index)

	handler := api.NewHandler(db, orchestrator, curationSvc, recommender, index, limiter, cfg.Pipeline.RunBudget)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	if cfg.Pipeline.SchedulerInterval > 0 {
		scheduler := pipeline.NewScheduler(orchestrator, reconciler,
			cfg.Pipeline.SchedulerInterval, cfg.Pipeline.RunBudget)
		tree.AddPipelineService(scheduler)
		logging.Info().
			Dur("interval", cfg.Pipeline.SchedulerInterval).
			Msg("Pipeline scheduler enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
