// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package duck

import (
	"context"
	"fmt"
	"time"
)

// schemaTimeout bounds schema creation and migration statements.
const schemaTimeout = 30 * time.Second

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), schemaTimeout)
}

// initSchema creates the base tables. All columns live in the initial
// CREATE TABLE statements; incremental changes go through the versioned
// migrations in migrations.go.
//
// The runs/canonical_records foreign key makes the parent-before-child
// ordering a structural property of the schema, not a calling convention.
func (s *Store) initSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			entity TEXT NOT NULL,
			environment TEXT NOT NULL,
			range_start DATE NOT NULL,
			range_end DATE NOT NULL,
			status TEXT NOT NULL,
			seen INTEGER NOT NULL DEFAULT 0,
			inserted INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			unchanged INTEGER NOT NULL DEFAULT 0,
			dropped INTEGER NOT NULL DEFAULT 0,
			days_done INTEGER NOT NULL DEFAULT 0,
			days_error INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			error_summary TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS canonical_records (
			entity TEXT NOT NULL,
			day DATE NOT NULL,
			natural_key TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			payload TEXT NOT NULL,
			run_id TEXT NOT NULL REFERENCES runs(id),
			first_seen_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (entity, natural_key)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_canonical_records_entity_day
			ON canonical_records(entity, day)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_started_at
			ON runs(started_at)`,
	}

	for _, q := range queries {
		if _, err := s.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
