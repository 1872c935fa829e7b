// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dugout/internal/ledger"
	"github.com/tomtom215/dugout/internal/models"
)

const runColumns = `id, entity, environment, range_start, range_end, status,
	seen, inserted, updated, unchanged, dropped, days_done, days_error,
	started_at, ended_at, error_summary`

// BeginRun writes the run row via its own single-statement call and
// returns only once the service confirms it. No record batch for this run
// is submitted before that confirmation.
func (s *Store) BeginRun(ctx context.Context, run *models.Run) error {
	if !run.Status.CanTransition(models.RunRunning) {
		return fmt.Errorf("run %s cannot start from status %s", run.ID, run.Status)
	}
	run.Status = models.RunRunning

	_, err := s.submit(ctx, []statement{{
		SQL: `INSERT INTO runs (id, entity, environment, range_start, range_end, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		Params: []any{
			run.ID.String(), string(run.Entity), run.Environment,
			run.Range.Start.Format(models.DayFormat), run.Range.End.Format(models.DayFormat),
			string(run.Status), run.StartedAt.UTC().Format(time.RFC3339),
		},
	}})
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

func (s *Store) finishRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, counts models.RunCounts, errorSummary *string) error {
	var summary any
	if errorSummary != nil {
		summary = *errorSummary
	}
	results, err := s.submit(ctx, []statement{{
		SQL: `UPDATE runs
			SET status = ?, seen = ?, inserted = ?, updated = ?, unchanged = ?,
			    dropped = ?, days_done = ?, days_error = ?, ended_at = ?, error_summary = ?
			WHERE id = ? AND status IN (?, ?)`,
		Params: []any{
			string(status), counts.Seen, counts.Inserted, counts.Updated, counts.Unchanged,
			counts.Dropped, counts.DaysDone, counts.DaysError,
			time.Now().UTC().Format(time.RFC3339), summary,
			runID.String(), string(models.RunPending), string(models.RunRunning),
		},
	}})
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if len(results) == 1 && results[0].RowsAffected == 0 {
		return fmt.Errorf("run %s not found or already terminal", runID)
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	rows, err := s.queryOne(ctx, statement{
		SQL:    `SELECT ` + runColumns + ` FROM runs WHERE id = ?`,
		Params: []any{runID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}
	if len(rows) == 0 {
		return nil, ledger.ErrRunNotFound
	}
	return runFromRow(rows[0])
}

// RecentRuns lists the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.queryOne(ctx, statement{
		SQL:    `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT ?`,
		Params: []any{limit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*models.Run, 0, len(rows))
	for _, row := range rows {
		run, err := runFromRow(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// runFromRow decodes the service's JSON row into a Run.
func runFromRow(row map[string]any) (*models.Run, error) {
	id, err := uuid.Parse(rowString(row, "id"))
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", rowString(row, "id"), err)
	}
	rangeStart, err := rowDay(row, "range_start")
	if err != nil {
		return nil, err
	}
	rangeEnd, err := rowDay(row, "range_end")
	if err != nil {
		return nil, err
	}
	startedAt, err := rowTime(row, "started_at")
	if err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:          id,
		Entity:      models.EntityType(rowString(row, "entity")),
		Environment: rowString(row, "environment"),
		Range:       models.DateRange{Start: rangeStart, End: rangeEnd},
		Status:      models.RunStatus(rowString(row, "status")),
		Counts: models.RunCounts{
			Seen:      rowInt(row, "seen"),
			Inserted:  rowInt(row, "inserted"),
			Updated:   rowInt(row, "updated"),
			Unchanged: rowInt(row, "unchanged"),
			Dropped:   rowInt(row, "dropped"),
			DaysDone:  rowInt(row, "days_done"),
			DaysError: rowInt(row, "days_error"),
		},
		StartedAt: startedAt,
	}
	if _, ok := row["ended_at"]; ok && row["ended_at"] != nil {
		endedAt, err := rowTime(row, "ended_at")
		if err != nil {
			return nil, err
		}
		run.EndedAt = &endedAt
	}
	if v, ok := row["error_summary"]; ok && v != nil {
		es := rowString(row, "error_summary")
		run.ErrorSummary = &es
	}
	return run, nil
}

func rowString(row map[string]any, col string) string {
	s, _ := row[col].(string)
	return s
}

func rowInt(row map[string]any, col string) int {
	switch v := row[col].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func rowDay(row map[string]any, col string) (time.Time, error) {
	t, err := rowTime(row, col)
	if err != nil {
		return time.Time{}, err
	}
	return models.DayOf(t), nil
}

// rowTime accepts the timestamp forms the service emits: RFC 3339, SQL
// datetime, or a bare day.
func rowTime(row map[string]any, col string) (time.Time, error) {
	s := rowString(row, col)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", models.DayFormat} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q in column %s", s, col)
}
