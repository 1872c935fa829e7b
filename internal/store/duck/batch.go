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

	"github.com/tomtom215/dugout/internal/metrics"
	"github.com/tomtom215/dugout/internal/models"
	"github.com/tomtom215/dugout/internal/store"
)

// ApplyBatch upserts one day-unit's records inside a single transaction.
// The run must already be committed (BeginRun): the batch transaction
// never opens for an unconfirmed run, so a crash here can only lose the
// batch, never orphan records.
//
// Idempotent: a record whose natural key exists with an equal fingerprint
// is counted unchanged and not rewritten; a differing fingerprint updates
// the row in place. Re-applying the same batch reports inserted=0.
func (s *Store) ApplyBatch(ctx context.Context, runID uuid.UUID, records []models.CanonicalRecord) (models.BatchResult, error) {
	var result models.BatchResult
	if len(records) == 0 {
		return result, nil
	}
	if err := s.ensureRunConfirmed(ctx, runID); err != nil {
		return result, err
	}

	start := time.Now()
	metrics.BatchSize.WithLabelValues(s.Name()).Observe(float64(len(records)))

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	selectStmt, err := tx.PrepareContext(ctx,
		`SELECT fingerprint FROM canonical_records WHERE entity = ? AND natural_key = ?`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare lookup: %w", err)
	}
	defer selectStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO canonical_records
			(entity, day, natural_key, fingerprint, payload, run_id, first_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insertStmt.Close()

	updateStmt, err := tx.PrepareContext(ctx, `
		UPDATE canonical_records
		SET day = ?, fingerprint = ?, payload = ?, run_id = ?, updated_at = ?
		WHERE entity = ? AND natural_key = ?`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare update: %w", err)
	}
	defer updateStmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		var existing string
		err := selectStmt.QueryRowContext(ctx, string(rec.Entity), rec.NaturalKey).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := insertStmt.ExecContext(ctx, string(rec.Entity), rec.Day, rec.NaturalKey,
				rec.Fingerprint, string(rec.Payload), runID.String(), now, now); err != nil {
				return models.BatchResult{}, fmt.Errorf("%w: insert %s: %v", store.ErrBatchRejected, rec.NaturalKey, err)
			}
			result.Inserted++

		case err != nil:
			return models.BatchResult{}, fmt.Errorf("failed to look up %s: %w", rec.NaturalKey, err)

		case existing == rec.Fingerprint:
			result.Unchanged++

		default:
			if _, err := updateStmt.ExecContext(ctx, rec.Day, rec.Fingerprint, string(rec.Payload),
				runID.String(), now, string(rec.Entity), rec.NaturalKey); err != nil {
				return models.BatchResult{}, fmt.Errorf("%w: update %s: %v", store.ErrBatchRejected, rec.NaturalKey, err)
			}
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return models.BatchResult{}, fmt.Errorf("failed to commit batch: %w", err)
	}

	metrics.BatchDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	return result, nil
}

// ensureRunConfirmed verifies the run row is durably committed, consulting
// the in-process cache first. A resumed process repopulates the cache from
// the table.
func (s *Store) ensureRunConfirmed(ctx context.Context, runID uuid.UUID) error {
	if _, ok := s.confirmed.Load(runID); ok {
		return nil
	}
	var one int
	err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrRunNotConfirmed, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to confirm run %s: %w", runID, err)
	}
	s.confirmed.Store(runID, struct{}{})
	return nil
}

// LatestRecordDate reports the most recent day with records for the
// entity, for the planner's since-last mode.
func (s *Store) LatestRecordDate(ctx context.Context, entity models.EntityType) (time.Time, bool, error) {
	var latest sql.NullTime
	err := s.conn.QueryRowContext(ctx,
		`SELECT max(day) FROM canonical_records WHERE entity = ?`, string(entity)).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest record date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return models.DayOf(latest.Time), true, nil
}
