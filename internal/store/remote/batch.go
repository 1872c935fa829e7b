// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dugout/internal/metrics"
	"github.com/tomtom215/dugout/internal/models"
	"github.com/tomtom215/dugout/internal/store"
)

// lookupKeysPerQuery bounds the IN list of one fingerprint lookup.
const lookupKeysPerQuery = 100

// ApplyBatch upserts one day-unit's records. Existing fingerprints are
// fetched first, the insert/update/unchanged split is computed locally,
// and only the needed writes are submitted, chunked to the service's
// statement and byte caps.
//
// Idempotent: re-applying a batch finds every fingerprint already present
// and submits nothing.
func (s *Store) ApplyBatch(ctx context.Context, runID uuid.UUID, records []models.CanonicalRecord) (models.BatchResult, error) {
	var result models.BatchResult
	if len(records) == 0 {
		return result, nil
	}
	if err := s.ensureRunConfirmed(ctx, runID); err != nil {
		return result, err
	}

	metrics.BatchSize.WithLabelValues(s.Name()).Observe(float64(len(records)))

	existing, err := s.lookupFingerprints(ctx, records)
	if err != nil {
		return result, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var writes []statement
	for _, rec := range records {
		fp, found := existing[rec.NaturalKey]
		switch {
		case !found:
			writes = append(writes, statement{
				SQL: `INSERT INTO canonical_records
					(entity, day, natural_key, fingerprint, payload, run_id, first_seen_at, updated_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				Params: []any{
					string(rec.Entity), rec.Day.Format(models.DayFormat), rec.NaturalKey,
					rec.Fingerprint, string(rec.Payload), runID.String(), now, now,
				},
			})
			result.Inserted++

		case fp == rec.Fingerprint:
			result.Unchanged++

		default:
			writes = append(writes, statement{
				SQL: `UPDATE canonical_records
					SET day = ?, fingerprint = ?, payload = ?, run_id = ?, updated_at = ?
					WHERE entity = ? AND natural_key = ?`,
				Params: []any{
					rec.Day.Format(models.DayFormat), rec.Fingerprint, string(rec.Payload),
					runID.String(), now, string(rec.Entity), rec.NaturalKey,
				},
			})
			result.Updated++
		}
	}

	for _, chunk := range chunkStatements(writes, s.maxStatements) {
		if err := s.submitWrites(ctx, chunk, true); err != nil {
			return models.BatchResult{}, err
		}
	}
	return result, nil
}

// submitWrites submits one chunk, splitting it in half and retrying once
// if the service rejects it as oversized. A rejection that survives the
// split is terminal for the day-unit.
func (s *Store) submitWrites(ctx context.Context, stmts []statement, allowSplit bool) error {
	if len(stmts) == 0 {
		return nil
	}
	_, err := s.submit(ctx, stmts)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errOversized) {
		return fmt.Errorf("%w: %v", store.ErrBatchRejected, err)
	}
	if !allowSplit || len(stmts) < 2 {
		return fmt.Errorf("%w: %v", store.ErrBatchRejected, err)
	}

	metrics.BatchSplitsTotal.Inc()
	mid := len(stmts) / 2
	if err := s.submitWrites(ctx, stmts[:mid], false); err != nil {
		return err
	}
	return s.submitWrites(ctx, stmts[mid:], false)
}

// lookupFingerprints fetches the stored fingerprint for every natural key
// in the batch.
func (s *Store) lookupFingerprints(ctx context.Context, records []models.CanonicalRecord) (map[string]string, error) {
	existing := make(map[string]string, len(records))
	entity := string(records[0].Entity)

	for start := 0; start < len(records); start += lookupKeysPerQuery {
		end := start + lookupKeysPerQuery
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		params := make([]any, 0, len(chunk)+1)
		params = append(params, entity)
		for _, rec := range chunk {
			params = append(params, rec.NaturalKey)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := s.queryOne(ctx, statement{
			SQL: `SELECT natural_key, fingerprint FROM canonical_records
				WHERE entity = ? AND natural_key IN (` + placeholders + `)`,
			Params: params,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to look up fingerprints: %w", err)
		}
		for _, row := range rows {
			existing[rowString(row, "natural_key")] = rowString(row, "fingerprint")
		}
	}
	return existing, nil
}

// ensureRunConfirmed verifies the run row exists remotely, consulting the
// in-process cache first.
func (s *Store) ensureRunConfirmed(ctx context.Context, runID uuid.UUID) error {
	if _, ok := s.confirmed.Load(runID); ok {
		return nil
	}
	rows, err := s.queryOne(ctx, statement{
		SQL:    `SELECT id FROM runs WHERE id = ?`,
		Params: []any{runID.String()},
	})
	if err != nil {
		return fmt.Errorf("failed to confirm run %s: %w", runID, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", store.ErrRunNotConfirmed, runID)
	}
	s.confirmed.Store(runID, struct{}{})
	return nil
}

// LatestRecordDate reports the most recent day with records for the
// entity.
func (s *Store) LatestRecordDate(ctx context.Context, entity models.EntityType) (time.Time, bool, error) {
	rows, err := s.queryOne(ctx, statement{
		SQL:    `SELECT max(day) AS latest FROM canonical_records WHERE entity = ?`,
		Params: []any{string(entity)},
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest record date: %w", err)
	}
	if len(rows) == 0 || rows[0]["latest"] == nil {
		return time.Time{}, false, nil
	}
	latest, err := rowDay(rows[0], "latest")
	if err != nil {
		return time.Time{}, false, err
	}
	return latest, true, nil
}

// chunkStatements splits writes into groups of at most maxStatements.
// Byte-size overflow is caught by submit's pre-check and handled by the
// split-and-retry path.
func chunkStatements(stmts []statement, maxStatements int) [][]statement {
	if maxStatements <= 0 {
		maxStatements = 50
	}
	var chunks [][]statement
	for start := 0; start < len(stmts); start += maxStatements {
		end := start + maxStatements
		if end > len(stmts) {
			end = len(stmts)
		}
		chunks = append(chunks, stmts[start:end])
	}
	return chunks
}
