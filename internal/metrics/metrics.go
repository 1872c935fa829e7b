// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

// Package metrics provides Prometheus metrics collection for observability.
//
// Metrics are registered with the default registry via promauto and exposed
// on the operational API's /metrics endpoint in Prometheus text format.
//
// Metric groups:
//   - Fetch: upstream API request counts, latency, retries, rate-limiter waits
//   - Run: run durations, day-unit outcomes, record counts by disposition
//   - Store: batch sizes and persistence latency per target
//   - Circuit breaker: state and transition tracking for the upstream API
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fetch metrics
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"entity", "status"}, // status: "success", "retry", "failure"
	)

	FetchRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_request_duration_seconds",
			Help:    "Upstream API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"entity"},
	)

	FetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "Total number of retried upstream requests",
		},
		[]string{"entity", "reason"}, // reason: "rate_limit", "server_error", "timeout", "credential"
	)

	RateLimiterWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rate_limiter_wait_duration_seconds",
			Help:    "Time spent waiting for the shared request token bucket",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
	)

	CredentialRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credential_refreshes_total",
			Help: "Total number of credential refreshes triggered by expiry",
		},
	)

	// Run metrics
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "run_duration_seconds",
			Help:    "Duration of ingestion runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"entity", "mode"},
	)

	DayUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "day_units_total",
			Help: "Total number of processed day-units by outcome",
		},
		[]string{"entity", "outcome"}, // outcome: "done", "errored", "skipped"
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_total",
			Help: "Total number of canonical records by disposition",
		},
		[]string{"entity", "disposition"}, // disposition: "inserted", "updated", "unchanged", "dropped"
	)

	NormalizeWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalize_warnings_total",
			Help: "Total number of records dropped during normalization",
		},
		[]string{"entity", "reason"},
	)

	// Store metrics
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_batch_size",
			Help:    "Number of records in persistence batches",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"target"}, // "duckdb", "remote"
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_batch_duration_seconds",
			Help:    "Persistence batch duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"target"},
	)

	BatchSplitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_batch_splits_total",
			Help: "Total number of oversized batches split and retried",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)
)
