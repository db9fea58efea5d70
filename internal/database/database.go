// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

// Package database provides the DuckDB-backed relational store for films,
// queue entries, curation history, and daily pipeline metrics.
//
// All state transitions are written immediately per item, never batched in
// memory, so an interrupted run leaves the last durable write as the
// resumption point. Writes are per-row UPDATEs; the one invariant that
// spans two columns (vector_id set iff status completed) is enforced by
// always writing both columns in a single statement.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/vitascope/internal/config"
	"github.com/tomtom215/vitascope/internal/logging"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New creates a new database connection and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure parent directory exists for the database file.
	// Use 0750 permissions per gosec G301.
	if dbDir := filepath.Dir(cfg.Path); dbDir != "" && dbDir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, numThreads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database initialized")
	return db, nil
}

// initSchema creates all tables if they do not exist.
func (db *DB) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS films (
			external_id BIGINT PRIMARY KEY,
			title VARCHAR NOT NULL,
			year INTEGER NOT NULL,
			release_date DATE,
			vote_average DOUBLE NOT NULL DEFAULT 0,
			vote_count BIGINT NOT NULL DEFAULT 0,
			popularity DOUBLE NOT NULL DEFAULT 0,
			genres VARCHAR NOT NULL DEFAULT '[]',
			runtime INTEGER NOT NULL DEFAULT 0,
			overview VARCHAR NOT NULL DEFAULT '',
			original_language VARCHAR NOT NULL DEFAULT '',
			countries VARCHAR NOT NULL DEFAULT '[]',
			keywords VARCHAR NOT NULL DEFAULT '[]',
			in_classic_set BOOLEAN NOT NULL DEFAULT FALSE,
			processing_status VARCHAR NOT NULL DEFAULT 'pending',
			vector_id VARCHAR,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error VARCHAR NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS queue_entries (
			external_id BIGINT PRIMARY KEY,
			priority INTEGER NOT NULL DEFAULT 0,
			status VARCHAR NOT NULL DEFAULT 'pending',
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at TIMESTAMP
		)`,
		`CREATE SEQUENCE IF NOT EXISTS curation_log_seq`,
		`CREATE TABLE IF NOT EXISTS curation_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('curation_log_seq'),
			external_id BIGINT NOT NULL,
			action VARCHAR NOT NULL,
			reason VARCHAR NOT NULL,
			source VARCHAR NOT NULL,
			score DOUBLE NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE SEQUENCE IF NOT EXISTS rejections_seq`,
		`CREATE TABLE IF NOT EXISTS rejections (
			id BIGINT PRIMARY KEY DEFAULT nextval('rejections_seq'),
			external_id BIGINT NOT NULL,
			title VARCHAR NOT NULL,
			year INTEGER NOT NULL,
			reason VARCHAR NOT NULL,
			vote_average DOUBLE NOT NULL DEFAULT 0,
			vote_count BIGINT NOT NULL DEFAULT 0,
			score DOUBLE NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS duplicate_mappings (
			primary_id BIGINT NOT NULL,
			duplicate_id BIGINT NOT NULL,
			match_type VARCHAR NOT NULL,
			confidence DOUBLE NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (primary_id, duplicate_id)
		)`,
		`CREATE TABLE IF NOT EXISTS quality_metrics (
			external_id BIGINT PRIMARY KEY,
			score DOUBLE NOT NULL,
			rating_pts DOUBLE NOT NULL,
			vote_pts DOUBLE NOT NULL,
			age_pts DOUBLE NOT NULL,
			cultural_pts DOUBLE NOT NULL,
			diversity_pts DOUBLE NOT NULL,
			popularity_pts DOUBLE NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS daily_metrics (
			day VARCHAR PRIMARY KEY,
			items_processed BIGINT NOT NULL DEFAULT 0,
			embeddings_created BIGINT NOT NULL DEFAULT 0,
			vectors_uploaded BIGINT NOT NULL DEFAULT 0,
			provider_requests BIGINT NOT NULL DEFAULT 0,
			errors BIGINT NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
