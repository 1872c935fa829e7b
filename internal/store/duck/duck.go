// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

// Package duck implements the persistence target on an embedded DuckDB
// database.
//
// Characteristics:
//   - Single file-backed database, created on first open
//   - CGO-based driver (github.com/duckdb/duckdb-go/v2)
//   - One pooled connection: DuckDB serializes writers, and a single
//     connection turns write-write conflicts into queueing
//   - Run rows commit in their own transaction before any record batch
//     transaction opens, so a crash mid-batch cannot orphan child rows
package duck

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/dugout/internal/config"
	"github.com/tomtom215/dugout/internal/logging"
)

// Store is the embedded DuckDB persistence target.
type Store struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// confirmed caches run IDs this process has durably committed, so
	// ApplyBatch can enforce run-before-records without a query per batch.
	confirmed sync.Map
}

// New opens (creating if needed) the database file and initializes the
// schema.
func New(cfg *config.DatabaseConfig) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists before DuckDB tries to create
	// the file. 0750 per gosec G301.
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	// Disable auto-install/auto-load of extensions to prevent hangs in
	// restricted network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: all ledger and batch writes queue behind it
	// instead of failing on DuckDB's optimistic write conflicts.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	s := &Store{conn: conn, cfg: cfg}

	if err := s.initSchema(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.runMigrations(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("DuckDB store opened")

	return s, nil
}

// Name identifies this target in logs and metrics.
func (s *Store) Name() string {
	return "duckdb"
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func closeQuietly(conn *sql.DB) {
	if conn != nil {
		_ = conn.Close() // cleanup is best-effort
	}
}
