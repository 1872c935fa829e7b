// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
// Validation failures are fatal configuration errors: the CLI reports them
// before any run is opened in the ledger.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return c.validateLogging()
}

// validateSource validates upstream API settings.
func (c *Config) validateSource() error {
	if c.Source.URL == "" {
		return fmt.Errorf("SOURCE_URL is required")
	}
	if err := validateHTTPURL(c.Source.URL, "SOURCE_URL"); err != nil {
		return err
	}
	if c.Source.Token == "" && c.Source.TokenURL == "" {
		return fmt.Errorf("either SOURCE_TOKEN or SOURCE_TOKEN_URL is required")
	}
	if c.Source.TokenURL != "" {
		if err := validateHTTPURL(c.Source.TokenURL, "SOURCE_TOKEN_URL"); err != nil {
			return err
		}
		if c.Source.ClientID == "" || c.Source.ClientSecret == "" {
			return fmt.Errorf("SOURCE_CLIENT_ID and SOURCE_CLIENT_SECRET are required when SOURCE_TOKEN_URL is set")
		}
	}
	if c.Source.RequestsPerSecond <= 0 {
		return fmt.Errorf("SOURCE_REQUESTS_PER_SECOND must be positive, got %v", c.Source.RequestsPerSecond)
	}
	if c.Source.RetryAttempts < 0 {
		return fmt.Errorf("SOURCE_RETRY_ATTEMPTS must not be negative, got %d", c.Source.RetryAttempts)
	}
	return nil
}

// validateRemote validates remote store settings. The remote target is
// optional; settings are only checked when a URL is configured.
func (c *Config) validateRemote() error {
	if c.Remote.URL == "" {
		return nil
	}
	if err := validateHTTPURL(c.Remote.URL, "REMOTE_URL"); err != nil {
		return err
	}
	if c.Remote.APIToken == "" {
		return fmt.Errorf("REMOTE_API_TOKEN is required when REMOTE_URL is set")
	}
	if c.Remote.MaxBatchStatement <= 0 {
		return fmt.Errorf("REMOTE_MAX_BATCH_STATEMENTS must be positive, got %d", c.Remote.MaxBatchStatement)
	}
	if c.Remote.MaxBatchBytes <= 0 {
		return fmt.Errorf("REMOTE_MAX_BATCH_BYTES must be positive, got %d", c.Remote.MaxBatchBytes)
	}
	return nil
}

// validateSync validates coordinator settings.
func (c *Config) validateSync() error {
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("SYNC_WORKERS must be positive, got %d", c.Sync.Workers)
	}
	if c.Sync.LookbackDays < 0 {
		return fmt.Errorf("SYNC_LOOKBACK_DAYS must not be negative, got %d", c.Sync.LookbackDays)
	}
	if c.Sync.CheckpointPath == "" {
		return fmt.Errorf("CHECKPOINT_PATH is required")
	}
	return nil
}

// validateLogging validates log level and format values.
func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled", "":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "":
	default:
		return fmt.Errorf("LOG_FORMAT %q must be json or console", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that a value parses as an absolute http(s) URL.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
