// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package config

import (
	"strings"
	"testing"
)

// validConfig returns a config that passes validation, for mutation in tests.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Source.URL = "https://api.example.com"
	cfg.Source.Token = "test-token"
	return cfg
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRequiresSourceURL(t *testing.T) {
	cfg := validConfig()
	cfg.Source.URL = ""
	expectValidationError(t, cfg, "SOURCE_URL")
}

func TestValidateRequiresCredential(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Token = ""
	cfg.Source.TokenURL = ""
	expectValidationError(t, cfg, "SOURCE_TOKEN")
}

func TestValidateTokenURLNeedsClientCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Token = ""
	cfg.Source.TokenURL = "https://auth.example.com/token"
	expectValidationError(t, cfg, "SOURCE_CLIENT_ID")

	cfg.Source.ClientID = "id"
	cfg.Source.ClientSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("config with full token-endpoint credentials rejected: %v", err)
	}
}

func TestValidateRejectsBadURLScheme(t *testing.T) {
	cfg := validConfig()
	cfg.Source.URL = "ftp://api.example.com"
	expectValidationError(t, cfg, "http")
}

func TestValidateRejectsNonPositiveRate(t *testing.T) {
	cfg := validConfig()
	cfg.Source.RequestsPerSecond = 0
	expectValidationError(t, cfg, "SOURCE_REQUESTS_PER_SECOND")
}

func TestValidateRemoteOptional(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.URL = ""
	cfg.Remote.APIToken = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("remote-less config rejected: %v", err)
	}
}

func TestValidateRemoteRequiresToken(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.URL = "https://remote.example.com"
	cfg.Remote.APIToken = ""
	expectValidationError(t, cfg, "REMOTE_API_TOKEN")
}

func TestValidateRemoteBatchCaps(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.URL = "https://remote.example.com"
	cfg.Remote.APIToken = "tok"
	cfg.Remote.MaxBatchStatement = 0
	expectValidationError(t, cfg, "REMOTE_MAX_BATCH_STATEMENTS")
}

func TestValidateWorkers(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.Workers = 0
	expectValidationError(t, cfg, "SYNC_WORKERS")
}

func TestValidateLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	expectValidationError(t, cfg, "LOG_LEVEL")
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"SOURCE_URL", "source.url"},
		{"DUCKDB_PATH", "database.path"},
		{"CHECKPOINT_PATH", "sync.checkpoint_path"},
		{"SYNC_WORKERS", "sync.workers"},
		{"LOG_LEVEL", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestDefaultConfigIsInternallyConsistent(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Sync.Workers <= 0 {
		t.Error("default worker count must be positive")
	}
	if cfg.Source.RetryBaseDelay > cfg.Source.RetryMaxDelay {
		t.Error("default retry base delay exceeds max delay")
	}
	if cfg.Remote.MaxBatchStatement <= 0 || cfg.Remote.MaxBatchBytes <= 0 {
		t.Error("default remote batch caps must be positive")
	}
}

// expectValidationError asserts Validate fails and mentions the named setting.
func expectValidationError(t *testing.T, cfg *Config, fragment string) {
	t.Helper()
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error mentioning %q, got nil", fragment)
	}
	if !strings.Contains(err.Error(), fragment) {
		t.Errorf("error %q does not mention %q", err.Error(), fragment)
	}
}
