// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// RawRecord is one undecoded record as returned by the upstream API.
type RawRecord = json.RawMessage

// CanonicalRecord is a normalized, fingerprinted row for one business entity
// instance. Uniqueness is on (Entity, NaturalKey); re-ingestion of the same
// key with an identical fingerprint is a no-op, a differing fingerprint is an
// in-place update. Records are never hard-deleted by the pipeline.
type CanonicalRecord struct {
	Entity EntityType `json:"entity"`

	// Day is the UTC calendar day the record belongs to. It is part of the
	// natural key for every entity type.
	Day time.Time `json:"day"`

	// NaturalKey is the composite business key, unique within an entity type.
	NaturalKey string `json:"natural_key"`

	// Fingerprint is a stable SHA-256 hex digest over the record's business
	// fields, excluding volatile metadata. Identical business fields yield an
	// identical fingerprint regardless of raw payload field ordering.
	Fingerprint string `json:"fingerprint"`

	// Payload is the canonical JSON encoding of the business fields
	// (lexicographically sorted keys).
	Payload json.RawMessage `json:"payload"`
}

// BatchResult reports record dispositions from one ApplyBatch call.
type BatchResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Add accumulates another result into this one.
func (r *BatchResult) Add(other BatchResult) {
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
}

// Total returns the number of records accounted for.
func (r BatchResult) Total() int {
	return r.Inserted + r.Updated + r.Unchanged
}
