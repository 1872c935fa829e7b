// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

// Package ledger defines the run ledger contract: the durable record of
// every ingestion attempt.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tomtom215/dugout/internal/models"
)

// ErrRunNotFound is returned when a run ID has no ledger row.
var ErrRunNotFound = errors.New("run not found")

// Ledger records ingestion runs. BeginRun must be durably committed before
// any record that references the run is written; both persistence targets
// implement this ordering structurally by refusing to accept record
// batches for an unconfirmed run.
//
// Concurrent BeginRun calls for the same entity and range are allowed and
// produce distinct run IDs; de-duplicating effort is the coordinator's job.
type Ledger interface {
	// BeginRun durably creates a run row in status running.
	BeginRun(ctx context.Context, run *models.Run) error

	// CompleteRun marks the run completed with its final counts.
	CompleteRun(ctx context.Context, runID uuid.UUID, counts models.RunCounts) error

	// FailRun marks the run failed, recording partial counts and a
	// diagnostic summary.
	FailRun(ctx context.Context, runID uuid.UUID, counts models.RunCounts, errorSummary string) error

	// GetRun fetches one run by ID.
	GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error)

	// RecentRuns lists the most recent runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]*models.Run, error)
}
