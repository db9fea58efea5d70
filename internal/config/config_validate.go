// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for malformed or inconsistent values.
// It is called by Load() after all layers are merged.
func (c *Config) Validate() error {
	if err := validateURL("catalog.url", c.Catalog.URL, true); err != nil {
		return err
	}
	if err := validateURL("embedding.url", c.Embedding.URL, false); err != nil {
		return err
	}
	if err := validateURL("vector_index.url", c.VectorIndex.URL, false); err != nil {
		return err
	}

	if c.Catalog.MinAgeYears < 0 {
		return fmt.Errorf("catalog.min_age_years must be >= 0, got %d", c.Catalog.MinAgeYears)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be > 0, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be > 0, got %d", c.Embedding.Dimension)
	}
	if c.VectorIndex.UpsertBatchSize <= 0 {
		return fmt.Errorf("vector_index.upsert_batch_size must be > 0, got %d", c.VectorIndex.UpsertBatchSize)
	}
	if c.VectorIndex.UpsertBatchFloor <= 0 || c.VectorIndex.UpsertBatchFloor > c.VectorIndex.UpsertBatchSize {
		return fmt.Errorf("vector_index.upsert_batch_floor must be in (0, %d], got %d",
			c.VectorIndex.UpsertBatchSize, c.VectorIndex.UpsertBatchFloor)
	}
	if c.Pipeline.SubBatchSize <= 0 {
		return fmt.Errorf("pipeline.sub_batch_size must be > 0, got %d", c.Pipeline.SubBatchSize)
	}
	if c.Pipeline.RunBudget <= 0 {
		return fmt.Errorf("pipeline.run_budget must be > 0, got %s", c.Pipeline.RunBudget)
	}
	if c.Curator.MinScore < 0 || c.Curator.MinScore > 100 {
		return fmt.Errorf("curator.min_score must be in [0, 100], got %g", c.Curator.MinScore)
	}
	if c.Curator.BalanceTolerance < 0 {
		return fmt.Errorf("curator.balance_tolerance must be >= 0, got %g", c.Curator.BalanceTolerance)
	}
	for genre, target := range c.Curator.GenreTargets {
		if target <= 0 || target > 1 {
			return fmt.Errorf("curator.genre_targets[%s] must be in (0, 1], got %g", genre, target)
		}
	}

	for _, limit := range []struct {
		name string
		l    ServiceLimit
	}{
		{"rate_limit.catalog", c.RateLimit.Catalog},
		{"rate_limit.embedding", c.RateLimit.Embedding},
		{"rate_limit.vector_index", c.RateLimit.VectorIndex},
	} {
		if limit.l.Requests <= 0 {
			return fmt.Errorf("%s.requests must be > 0, got %d", limit.name, limit.l.Requests)
		}
		if limit.l.Window <= 0 {
			return fmt.Errorf("%s.window must be > 0, got %s", limit.name, limit.l.Window)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Badger.Path == "" && !c.Badger.InMemory {
		return fmt.Errorf("badger.path is required unless badger.in_memory is set")
	}

	return nil
}

// validateURL checks that a URL is well-formed. Required URLs must be
// non-empty; optional ones are only checked when set.
func validateURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not a valid URL: %q", field, raw)
	}
	return nil
}
