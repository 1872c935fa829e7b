// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package duck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dugout/internal/ledger"
	"github.com/tomtom215/dugout/internal/models"
)

// BeginRun durably commits the run row in status running. Returns only
// after commit: once this method succeeds the run ID is safe to reference
// from record batches.
func (s *Store) BeginRun(ctx context.Context, run *models.Run) error {
	if !run.Status.CanTransition(models.RunRunning) {
		return fmt.Errorf("run %s cannot start from status %s", run.ID, run.Status)
	}
	run.Status = models.RunRunning

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO runs (id, entity, environment, range_start, range_end, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), string(run.Entity), run.Environment,
		run.Range.Start, run.Range.End, string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	s.confirmed.Store(run.ID, struct{}{})
	return nil
}

// CompleteRun marks the run completed with its final counts.
func (s *Store) CompleteRun(ctx context.Context, runID uuid.UUID, counts models.RunCounts) error {
	return s.finishRun(ctx, runID, models.RunCompleted, counts, nil)
}

// FailRun marks the run failed with partial counts and a diagnostic.
func (s *Store) FailRun(ctx context.Context, runID uuid.UUID, counts models.RunCounts, errorSummary string) error {
	return s.finishRun(ctx, runID, models.RunFailed, counts, &errorSummary)
}

// finishRun applies a terminal status. The WHERE clause enforces the
// monotonic transition: a run already terminal is never rewritten.
func (s *Store) finishRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, counts models.RunCounts, errorSummary *string) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, seen = ?, inserted = ?, updated = ?, unchanged = ?,
		    dropped = ?, days_done = ?, days_error = ?, ended_at = ?, error_summary = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(status), counts.Seen, counts.Inserted, counts.Updated, counts.Unchanged,
		counts.Dropped, counts.DaysDone, counts.DaysError, time.Now().UTC(), errorSummary,
		runID.String(), string(models.RunPending), string(models.RunRunning))
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check run update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found or already terminal", runID)
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, entity, environment, range_start, range_end, status,
		       seen, inserted, updated, unchanged, dropped, days_done, days_error,
		       started_at, ended_at, error_summary
		FROM runs WHERE id = ?`, runID.String())

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}
	return run, nil
}

// RecentRuns lists the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, entity, environment, range_start, range_end, status,
		       seen, inserted, updated, unchanged, dropped, days_done, days_error,
		       started_at, ended_at, error_summary
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run          models.Run
		id           string
		entity       string
		status       string
		rangeStart   time.Time
		rangeEnd     time.Time
		endedAt      sql.NullTime
		errorSummary sql.NullString
	)
	err := row.Scan(&id, &entity, &run.Environment, &rangeStart, &rangeEnd, &status,
		&run.Counts.Seen, &run.Counts.Inserted, &run.Counts.Updated, &run.Counts.Unchanged,
		&run.Counts.Dropped, &run.Counts.DaysDone, &run.Counts.DaysError,
		&run.StartedAt, &endedAt, &errorSummary)
	if err != nil {
		return nil, err
	}

	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	run.ID = runID
	run.Entity = models.EntityType(entity)
	run.Status = models.RunStatus(status)
	run.Range = models.DateRange{Start: models.DayOf(rangeStart), End: models.DayOf(rangeEnd)}
	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}
	if errorSummary.Valid {
		es := errorSummary.String
		run.ErrorSummary = &es
	}
	return &run, nil
}
