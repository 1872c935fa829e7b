// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

/* normalize.go - Change-Detection Normalizer
 *
 * Converts raw upstream payloads into canonical records with a content
 * fingerprint. Pure: no I/O, no clock, no logging. Records missing their
 * natural-key fields are dropped with a structured warning rather than
 * silently skipped; the caller folds warning counts into the run's counts.
 *
 * Each entity has a fixed descriptor: which fields form the natural key and
 * which fields participate in the fingerprint. Volatile metadata the
 * upstream attaches (fetchedAt, etag, lastSeenAt) is outside every field
 * set, so re-fetching an unchanged record always reproduces the same
 * fingerprint.
 */

package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dugout/internal/models"
)

// Warning records one dropped raw record and why.
type Warning struct {
	Index  int    // position in the raw input slice
	Reason string // "malformed_payload" or "missing_key_field"
	Field  string // offending field for missing_key_field
}

func (w Warning) String() string {
	if w.Field != "" {
		return fmt.Sprintf("record %d dropped: %s (%s)", w.Index, w.Reason, w.Field)
	}
	return fmt.Sprintf("record %d dropped: %s", w.Index, w.Reason)
}

// Warning reasons.
const (
	ReasonMalformedPayload = "malformed_payload"
	ReasonMissingKeyField  = "missing_key_field"
)

// descriptor fixes an entity's field contract: the natural-key fields
// (required, identity) and the full fingerprint field set (ordered,
// business content).
type descriptor struct {
	keyFields         []string
	fingerprintFields []string
}

var descriptors = map[models.EntityType]descriptor{
	models.EntityRosterMoves: {
		keyFields: []string{"moveId"},
		fingerprintFields: []string{
			"moveId", "playerId", "teamId", "moveType", "effectiveDate", "details",
		},
	},
	models.EntityLineups: {
		keyFields: []string{"teamId", "battingSlot"},
		fingerprintFields: []string{
			"teamId", "battingSlot", "playerId", "position", "gameId", "opponentId",
		},
	},
	models.EntityPlayerStats: {
		keyFields: []string{"playerId", "statGroup"},
		fingerprintFields: []string{
			"playerId", "statGroup", "teamId", "gameId", "stats",
		},
	},
}

// Normalize converts one day's raw records for an entity into canonical
// records. Unusable records are reported in the returned warnings; the
// error return is reserved for an unknown entity type.
func Normalize(entity models.EntityType, day time.Time, raws []models.RawRecord) ([]models.CanonicalRecord, []Warning, error) {
	desc, ok := descriptors[entity]
	if !ok {
		return nil, nil, fmt.Errorf("no normalizer for entity %q", entity)
	}

	day = models.DayOf(day)
	records := make([]models.CanonicalRecord, 0, len(raws))
	var warnings []Warning

	for i, raw := range raws {
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			warnings = append(warnings, Warning{Index: i, Reason: ReasonMalformedPayload})
			continue
		}

		key, missing := naturalKey(day, desc.keyFields, payload)
		if missing != "" {
			warnings = append(warnings, Warning{Index: i, Reason: ReasonMissingKeyField, Field: missing})
			continue
		}

		fp, err := fingerprint(entity, day, desc.fingerprintFields, payload)
		if err != nil {
			warnings = append(warnings, Warning{Index: i, Reason: ReasonMalformedPayload})
			continue
		}
		canonical, err := canonicalPayload(desc.fingerprintFields, payload)
		if err != nil {
			warnings = append(warnings, Warning{Index: i, Reason: ReasonMalformedPayload})
			continue
		}

		records = append(records, models.CanonicalRecord{
			Entity:      entity,
			Day:         day,
			NaturalKey:  key,
			Fingerprint: fp,
			Payload:     canonical,
		})
	}

	return records, warnings, nil
}

// naturalKey builds "YYYY-MM-DD/v1/v2" from the entity's key fields. A
// key field that is absent, null, or an empty string makes the record
// unidentifiable; the field name is returned as missing.
func naturalKey(day time.Time, keyFields []string, payload map[string]any) (string, string) {
	parts := make([]string, 0, len(keyFields)+1)
	parts = append(parts, day.Format(models.DayFormat))
	for _, f := range keyFields {
		v, ok := payload[f]
		if !ok || v == nil {
			return "", f
		}
		s := keyValueString(v)
		if s == "" {
			return "", f
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "/"), ""
}

// keyValueString stringifies a key field value. Whole-number floats render
// without a fraction so a source flipping between "7" and 7 keys the same
// record.
func keyValueString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}
