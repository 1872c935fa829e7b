// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package models

import "time"

// DayState is the per-day-unit position in the coordinator's state machine:
// queued -> fetching -> normalizing -> persisting -> done | errored.
type DayState string

const (
	DayQueued      DayState = "queued"
	DayFetching    DayState = "fetching"
	DayNormalizing DayState = "normalizing"
	DayPersisting  DayState = "persisting"
	DayDone        DayState = "done"
	DayErrored     DayState = "errored"
)

// Terminal reports whether the state is an end state for a day-unit.
func (s DayState) Terminal() bool {
	return s == DayDone || s == DayErrored
}

// DayProgress is the durable record of one day-unit's outcome.
type DayProgress struct {
	Day   time.Time `json:"day"`
	State DayState  `json:"state"`
	Error string    `json:"error,omitempty"`
}

// Checkpoint is the durable progress marker for one backfill attempt,
// keyed by (entity, range). It is created at backfill start, updated after
// each day-unit reaches a terminal state, discarded on successful completion,
// and retained on abnormal termination so a restart can resume.
type Checkpoint struct {
	Entity  EntityType             `json:"entity"`
	Range   DateRange              `json:"range"`
	Workers int                    `json:"workers"`
	Days    map[string]DayProgress `json:"days"` // keyed by DayFormat
}

// CompletedDays returns the set of days already done, keyed by DayFormat.
func (c *Checkpoint) CompletedDays() map[string]bool {
	done := make(map[string]bool, len(c.Days))
	for key, p := range c.Days {
		if p.State == DayDone {
			done[key] = true
		}
	}
	return done
}
