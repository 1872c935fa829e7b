// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

// Package models defines the shared data types for the ingestion pipeline:
// runs, canonical records, date ranges, and backfill checkpoints.
package models
