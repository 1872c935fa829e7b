// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

// Package fetch retrieves raw day-partitioned records from the upstream
// sports API.
//
// The package exposes a small Fetcher interface around one operation,
// fetching all records for an (entity, day) pair. The production Client
// shares a single token bucket across all workers, follows cursor
// pagination, retries transient failures with exponential backoff, and
// refreshes an expired credential at most once per call. BreakerFetcher
// optionally wraps any Fetcher with a circuit breaker so a down upstream
// fails fast.
package fetch
