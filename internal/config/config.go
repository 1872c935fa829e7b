// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package config

import "time"

// Config holds all application configuration loaded from environment
// variables and an optional YAML config file.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Source   SourceConfig   `koanf:"source"`
	Database DatabaseConfig `koanf:"database"`
	Remote   RemoteConfig   `koanf:"remote"`
	Sync     SyncConfig     `koanf:"sync"`
	Ops      OpsConfig      `koanf:"ops"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// SourceConfig holds connection settings for the upstream sports data API.
//
// Environment Variables:
//   - SOURCE_URL: Base URL of the upstream API
//   - SOURCE_TOKEN: Static bearer token (mutually exclusive with token URL)
//   - SOURCE_TOKEN_URL: Token endpoint for refreshable credentials
//   - SOURCE_CLIENT_ID / SOURCE_CLIENT_SECRET: Credentials for the token endpoint
//   - SOURCE_REQUESTS_PER_SECOND: Global request ceiling shared by all workers
type SourceConfig struct {
	URL          string `koanf:"url"`
	Token        string `koanf:"token"`
	TokenURL     string `koanf:"token_url"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`

	// RequestsPerSecond is the process-wide ceiling enforced by a single
	// shared token bucket, not a per-worker budget.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Burst is the token bucket depth. Defaults to 1 (strict pacing).
	Burst int `koanf:"burst"`

	Timeout        time.Duration `koanf:"timeout"`
	RetryAttempts  int           `koanf:"retry_attempts"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay"`

	// BreakerEnabled wraps the fetch client in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// DatabaseConfig holds embedded DuckDB store settings.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path
//   - DUCKDB_MAX_MEMORY: Memory ceiling (e.g. "2GB")
//   - DUCKDB_THREADS: Worker threads (0 = runtime.NumCPU())
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// RemoteConfig holds settings for the remote batched HTTP store.
//
// The remote service accepts parameterized statements in bounded batches and
// rejects oversized requests, so both caps are enforced client-side.
//
// Environment Variables:
//   - REMOTE_URL: Base URL of the batch endpoint
//   - REMOTE_API_TOKEN: Bearer token for the remote store
//   - REMOTE_MAX_BATCH_STATEMENTS / REMOTE_MAX_BATCH_BYTES: Batch caps
type RemoteConfig struct {
	URL               string        `koanf:"url"`
	APIToken          string        `koanf:"api_token"`
	MaxBatchStatement int           `koanf:"max_batch_statements"`
	MaxBatchBytes     int           `koanf:"max_batch_bytes"`
	Timeout           time.Duration `koanf:"timeout"`
	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay"`
}

// SyncConfig holds run-level coordinator settings.
//
// Environment Variables:
//   - SYNC_WORKERS: Worker pool size (the API rate limit, not CPU count, is
//     the real constraint - keep this small)
//   - SYNC_RUN_TIMEOUT: Wall-clock ceiling for one run
//   - SYNC_LOOKBACK_DAYS: Default lookback window for incremental mode
//   - CHECKPOINT_PATH: BadgerDB directory for backfill checkpoints
type SyncConfig struct {
	Workers        int           `koanf:"workers"`
	RunTimeout     time.Duration `koanf:"run_timeout"`
	LookbackDays   int           `koanf:"lookback_days"`
	CheckpointPath string        `koanf:"checkpoint_path"`
	Environment    string        `koanf:"environment"`
}

// OpsConfig holds settings for the optional operational read API.
//
// Environment Variables:
//   - OPS_LISTEN: Listen address (empty disables the server)
type OpsConfig struct {
	Listen  string        `koanf:"listen"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
