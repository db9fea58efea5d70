// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vitascope/config.yaml",
	"/etc/vitascope/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. These are applied
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			URL:         "https://api.themoviedb.org/3",
			APIKey:      "",
			Timeout:     30 * time.Second,
			MinAgeYears: 2,
		},
		Embedding: EmbeddingConfig{
			URL:       "",
			APIKey:    "",
			Model:     "text-embedding-3-small",
			Timeout:   60 * time.Second,
			BatchSize: 50,
			Dimension: 1536,
		},
		VectorIndex: VectorIndexConfig{
			URL:              "",
			APIKey:           "",
			Timeout:          60 * time.Second,
			UpsertBatchSize:  500,
			UpsertBatchFloor: 50,
		},
		Pipeline: PipelineConfig{
			SubBatchSize:      10,
			RunBudget:         50 * time.Second,
			SchedulerInterval: 15 * time.Minute,
			DiscoverPageSize:  20,
		},
		Curator: CuratorConfig{
			MinScore: 60,
			GenreTargets: map[string]float64{
				"Drama":           0.30,
				"Comedy":          0.20,
				"Thriller":        0.15,
				"Action":          0.15,
				"Science Fiction": 0.10,
				"Horror":          0.10,
				"Documentary":     0.05,
			},
			DefaultGenreTarget: 0.10,
			BalanceTolerance:   0.20,
		},
		RateLimit: RateLimitConfig{
			Catalog:     ServiceLimit{Requests: 40, Window: 10 * time.Second},
			Embedding:   ServiceLimit{Requests: 60, Window: time.Minute},
			VectorIndex: ServiceLimit{Requests: 100, Window: time.Minute},
		},
		Database: DatabaseConfig{
			Path:      "/data/vitascope.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Badger: BadgerConfig{
			Path:     "/data/vitascope-badger",
			InMemory: false,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3860,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			PublicRateLimit: 120,
		},
		Security: SecurityConfig{
			AdminKey: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML config
// file, and environment variables (highest priority), then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envTransformFunc maps environment variable names to koanf paths:
// CATALOG_API_KEY -> catalog.api_key. Unmapped keys are skipped so random
// environment variables cannot pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Catalog provider
		"catalog_url":           "catalog.url",
		"catalog_api_key":       "catalog.api_key",
		"catalog_timeout":       "catalog.timeout",
		"catalog_min_age_years": "catalog.min_age_years",

		// Embedding provider
		"embedding_url":        "embedding.url",
		"embedding_api_key":    "embedding.api_key",
		"embedding_model":      "embedding.model",
		"embedding_timeout":    "embedding.timeout",
		"embedding_batch_size": "embedding.batch_size",
		"embedding_dimension":  "embedding.dimension",

		// Vector index
		"vector_index_url":          "vector_index.url",
		"vector_index_api_key":      "vector_index.api_key",
		"vector_index_timeout":      "vector_index.timeout",
		"vector_index_batch_size":   "vector_index.upsert_batch_size",
		"vector_index_batch_floor":  "vector_index.upsert_batch_floor",

		// Pipeline
		"pipeline_sub_batch_size":     "pipeline.sub_batch_size",
		"pipeline_run_budget":         "pipeline.run_budget",
		"pipeline_scheduler_interval": "pipeline.scheduler_interval",
		"pipeline_discover_page_size": "pipeline.discover_page_size",

		// Curator
		"curator_min_score":            "curator.min_score",
		"curator_default_genre_target": "curator.default_genre_target",
		"curator_balance_tolerance":    "curator.balance_tolerance",

		// Rate limits
		"rate_limit_catalog_requests":      "rate_limit.catalog.requests",
		"rate_limit_catalog_window":        "rate_limit.catalog.window",
		"rate_limit_embedding_requests":    "rate_limit.embedding.requests",
		"rate_limit_embedding_window":      "rate_limit.embedding.window",
		"rate_limit_vector_index_requests": "rate_limit.vector_index.requests",
		"rate_limit_vector_index_window":   "rate_limit.vector_index.window",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Badger
		"badger_path": "badger.path",

		// Server
		"http_host":         "server.host",
		"http_port":         "server.port",
		"http_read_timeout": "server.read_timeout",
		"public_rate_limit": "server.public_rate_limit",

		// Security
		"admin_key": "security.admin_key",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// findConfigFile locates the config file, honoring CONFIG_PATH first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
