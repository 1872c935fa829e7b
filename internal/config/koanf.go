// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

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

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/dugout/config.yaml",
	"/etc/dugout/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			URL:               "",
			Token:             "",
			TokenURL:          "",
			RequestsPerSecond: 4,
			Burst:             1,
			Timeout:           30 * time.Second,
			RetryAttempts:     5,
			RetryBaseDelay:    1 * time.Second,
			RetryMaxDelay:     30 * time.Second,
			BreakerEnabled:    true,
		},
		Database: DatabaseConfig{
			Path:      "/data/dugout.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Remote: RemoteConfig{
			URL:               "",
			APIToken:          "",
			MaxBatchStatement: 100,
			MaxBatchBytes:     1 << 20, // 1MB request ceiling on the remote service
			Timeout:           30 * time.Second,
			RetryAttempts:     5,
			RetryBaseDelay:    1 * time.Second,
			RetryMaxDelay:     30 * time.Second,
		},
		Sync: SyncConfig{
			Workers:        3,
			RunTimeout:     2 * time.Hour,
			LookbackDays:   3,
			CheckpointPath: "/data/checkpoints",
			Environment:    "development",
		},
		Ops: OpsConfig{
			Listen:  "",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence: ENV > File > Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// SOURCE_URL -> source.url
	// SYNC_WORKERS -> sync.workers
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

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
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

// envMappings maps known environment variable names to config paths.
// Variables not listed here are ignored so that unrelated process
// environment does not leak into the config tree.
var envMappings = map[string]string{
	"source_url":                 "source.url",
	"source_token":               "source.token",
	"source_token_url":           "source.token_url",
	"source_client_id":           "source.client_id",
	"source_client_secret":       "source.client_secret",
	"source_requests_per_second": "source.requests_per_second",
	"source_burst":               "source.burst",
	"source_timeout":             "source.timeout",
	"source_retry_attempts":      "source.retry_attempts",
	"source_retry_base_delay":    "source.retry_base_delay",
	"source_retry_max_delay":     "source.retry_max_delay",
	"source_breaker_enabled":     "source.breaker_enabled",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"remote_url":                  "remote.url",
	"remote_api_token":            "remote.api_token",
	"remote_max_batch_statements": "remote.max_batch_statements",
	"remote_max_batch_bytes":      "remote.max_batch_bytes",
	"remote_timeout":              "remote.timeout",
	"remote_retry_attempts":       "remote.retry_attempts",
	"remote_retry_base_delay":     "remote.retry_base_delay",
	"remote_retry_max_delay":      "remote.retry_max_delay",

	"sync_workers":       "sync.workers",
	"sync_run_timeout":   "sync.run_timeout",
	"sync_lookback_days": "sync.lookback_days",
	"sync_environment":   "sync.environment",
	"checkpoint_path":    "sync.checkpoint_path",

	"ops_listen":  "ops.listen",
	"ops_timeout": "ops.timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - SOURCE_URL -> source.url
//   - DUCKDB_PATH -> database.path
//   - CHECKPOINT_PATH -> sync.checkpoint_path
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return "" // Unmapped variables are discarded
}
