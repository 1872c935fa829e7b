// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

// Package store defines the persistence target contract shared by the
// embedded DuckDB store and the remote batched-statement store.
//
// A Target is both the run ledger and the canonical-record sink for one
// backing store. Batch application is idempotent on (natural key,
// fingerprint): re-running a failed batch can never create duplicates or
// double-count.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dugout/internal/ledger"
	"github.com/tomtom215/dugout/internal/logging"
	"github.com/tomtom215/dugout/internal/models"
)

var (
	// ErrBatchRejected marks a structural rejection by the backing store
	// (oversized batch after the one split-and-retry, constraint failure).
	// Terminal for the day-unit, not the run.
	ErrBatchRejected = errors.New("batch rejected by store")

	// ErrRunNotConfirmed is returned when ApplyBatch is called with a run
	// ID the target has not durably committed. Guards the parent-before-
	// child write ordering.
	ErrRunNotConfirmed = errors.New("run not confirmed in ledger")
)

// Target is a persistence backend: the run ledger plus the canonical
// record write and read paths. Implementations must serialize their own
// internal state; all methods are called concurrently from worker
// goroutines.
type Target interface {
	ledger.Ledger

	// ApplyBatch upserts one day-unit's records under the given run.
	// For each record: absent natural key inserts, differing fingerprint
	// updates in place, equal fingerprint is a no-op. The run must have
	// been confirmed via BeginRun first.
	ApplyBatch(ctx context.Context, runID uuid.UUID, records []models.CanonicalRecord) (models.BatchResult, error)

	// LatestRecordDate reports the most recent day with records for the
	// entity. found is false when the store holds nothing for it.
	LatestRecordDate(ctx context.Context, entity models.EntityType) (latest time.Time, found bool, err error)

	// Name identifies the target for logs and metrics ("duckdb", "remote").
	Name() string

	Close() error
}

// CloseQuietly closes a target, logging instead of returning the error.
// For defer paths where the primary error is already in flight.
func CloseQuietly(t Target) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		logging.Warn().Err(err).Str("target", t.Name()).Msg("Error closing persistence target")
	}
}
