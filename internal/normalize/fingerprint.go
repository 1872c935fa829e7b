// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dugout/internal/models"
)

// fingerprint computes the SHA-256 content hash over the entity's fixed
// field set. Fields are hashed in descriptor order with canonically
// re-marshaled values, so the result is independent of key ordering in the
// raw payload. Absent fields hash as an explicit marker to keep
// {"a":null} distinct from a missing "a".
func fingerprint(entity models.EntityType, day time.Time, fields []string, payload map[string]any) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", entity, day.Format(models.DayFormat))
	for _, f := range fields {
		v, ok := payload[f]
		if !ok {
			fmt.Fprintf(h, "%s\x00\x01\x00", f)
			continue
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode field %q: %w", f, err)
		}
		fmt.Fprintf(h, "%s\x00%s\x00", f, enc)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalPayload re-marshals the business fields of a decoded record.
// Map keys serialize in sorted order, so two raw payloads with the same
// business fields in different order produce byte-identical payloads.
// Volatile metadata outside the field set is discarded.
func canonicalPayload(fields []string, payload map[string]any) (json.RawMessage, error) {
	kept := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := payload[f]; ok {
			kept[f] = v
		}
	}
	enc, err := json.Marshal(kept)
	if err != nil {
		return nil, fmt.Errorf("encode canonical payload: %w", err)
	}
	return enc, nil
}
