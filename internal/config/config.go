// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package config

import "time"

// Config holds all application configuration loaded from environment
// variables and config files.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Catalog     CatalogConfig     `koanf:"catalog"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	VectorIndex VectorIndexConfig `koanf:"vector_index"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Curator     CuratorConfig     `koanf:"curator"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	Database    DatabaseConfig    `koanf:"database"`
	Badger      BadgerConfig      `koanf:"badger"`
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// CatalogConfig holds connection settings for the external metadata provider.
//
// Environment Variables:
//   - CATALOG_URL: provider base URL (e.g. https://api.themoviedb.org/3)
//   - CATALOG_API_KEY: provider API key
type CatalogConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
	// MinAgeYears is the minimum catalog age before a film is admissible.
	// Younger films have not had time to accumulate a reputation.
	MinAgeYears int `koanf:"min_age_years"`
}

// EmbeddingConfig holds connection settings for the embedding provider.
//
// Environment Variables:
//   - EMBEDDING_URL, EMBEDDING_API_KEY, EMBEDDING_MODEL
type EmbeddingConfig struct {
	URL       string        `koanf:"url"`
	APIKey    string        `koanf:"api_key"`
	Model     string        `koanf:"model"`
	Timeout   time.Duration `koanf:"timeout"`
	BatchSize int           `koanf:"batch_size"`
	// Dimension is the fixed vector dimension the provider returns.
	Dimension int `koanf:"dimension"`
}

// VectorIndexConfig holds connection settings for the external
// similarity-search index.
//
// Environment Variables:
//   - VECTOR_INDEX_URL, VECTOR_INDEX_API_KEY
type VectorIndexConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
	// UpsertBatchSize is the initial upsert batch size. Failed batches are
	// retried at half size down to UpsertBatchFloor.
	UpsertBatchSize  int `koanf:"upsert_batch_size"`
	UpsertBatchFloor int `koanf:"upsert_batch_floor"`
}

// PipelineConfig controls orchestrator batching and the scheduler trigger.
type PipelineConfig struct {
	// SubBatchSize is how many films move through the pipeline between
	// rate-limit and deadline checks.
	SubBatchSize int `koanf:"sub_batch_size"`
	// RunBudget bounds one pipeline run. The orchestrator checkpoints after
	// every film and stops early rather than overrun the budget.
	RunBudget time.Duration `koanf:"run_budget"`
	// SchedulerInterval is how often the supervised scheduler fires a run.
	// Zero disables the scheduler.
	SchedulerInterval time.Duration `koanf:"scheduler_interval"`
	// DiscoverPageSize bounds how many fresh candidates one run pulls when
	// the queue is empty.
	DiscoverPageSize int `koanf:"discover_page_size"`
}

// CuratorConfig controls admission scoring and genre balance.
type CuratorConfig struct {
	// MinScore is the composite quality score threshold (0-100).
	MinScore float64 `koanf:"min_score"`
	// GenreTargets maps genre name to its target catalog share (0-1).
	// Genres not listed use DefaultGenreTarget.
	GenreTargets map[string]float64 `koanf:"genre_targets"`
	// DefaultGenreTarget is the target share for unlisted genres.
	DefaultGenreTarget float64 `koanf:"default_genre_target"`
	// BalanceTolerance is the fractional overshoot allowed before a
	// candidate is queued instead of accepted (0.2 = 20%).
	BalanceTolerance float64 `koanf:"balance_tolerance"`
}

// ServiceLimit is one fixed-window request budget.
type ServiceLimit struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

// RateLimitConfig holds the per-service fixed-window budgets enforced
// against the durable counter store.
type RateLimitConfig struct {
	Catalog     ServiceLimit `koanf:"catalog"`
	Embedding   ServiceLimit `koanf:"embedding"`
	VectorIndex ServiceLimit `koanf:"vector_index"`
}

// DatabaseConfig holds DuckDB settings.
//
// Environment Variables:
//   - DATABASE_PATH: DuckDB file path (default: /data/vitascope.duckdb)
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// BadgerConfig holds the durable counter store settings.
type BadgerConfig struct {
	Path string `koanf:"path"`
	// InMemory runs badger without persistence. Tests only.
	InMemory bool `koanf:"in_memory"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// PublicRateLimit is requests per minute per IP on public endpoints.
	PublicRateLimit int `koanf:"public_rate_limit"`
}

// SecurityConfig holds the shared admin key. Admin endpoints compare the
// X-Admin-Key header against this value in constant time.
//
// Environment Variables:
//   - ADMIN_KEY: shared admin secret (required for admin endpoints)
type SecurityConfig struct {
	AdminKey string `koanf:"admin_key"`
}

// LoggingConfig holds log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
