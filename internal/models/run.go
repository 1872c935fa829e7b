// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies one of the ingested record families.
type EntityType string

const (
	EntityRosterMoves EntityType = "roster-moves"
	EntityLineups     EntityType = "lineups"
	EntityPlayerStats EntityType = "player-stats"
)

// ParseEntityType validates and returns an EntityType from its string form.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityRosterMoves, EntityLineups, EntityPlayerStats:
		return EntityType(s), nil
	default:
		return "", fmt.Errorf("unknown entity type %q", s)
	}
}

// RunStatus is the lifecycle state of an ingestion run.
// Transitions are monotonic: pending -> running -> completed|failed.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// CanTransition reports whether a run may move from one status to another.
// Terminal states never transition; completed never reverts to running.
func (s RunStatus) CanTransition(to RunStatus) bool {
	switch s {
	case RunPending:
		return to == RunRunning || to == RunFailed
	case RunRunning:
		return to == RunCompleted || to == RunFailed
	default:
		return false
	}
}

// DateRange is a closed, inclusive range of calendar days.
// Both bounds are normalized to UTC midnight.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a normalized range, rejecting end < start.
func NewDateRange(start, end time.Time) (DateRange, error) {
	dr := DateRange{Start: DayOf(start), End: DayOf(end)}
	if dr.End.Before(dr.Start) {
		return DateRange{}, fmt.Errorf("invalid date range: end %s before start %s",
			dr.End.Format(DayFormat), dr.Start.Format(DayFormat))
	}
	return dr, nil
}

// DayFormat is the canonical wire and key format for a day-unit.
const DayFormat = "2006-01-02"

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Days expands the range into its ordered day-units, oldest first.
func (dr DateRange) Days() []time.Time {
	var days []time.Time
	for d := dr.Start; !d.After(dr.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Len returns the number of day-units in the range.
func (dr DateRange) Len() int {
	return int(dr.End.Sub(dr.Start).Hours()/24) + 1
}

// String renders the range as "start..end".
func (dr DateRange) String() string {
	return dr.Start.Format(DayFormat) + ".." + dr.End.Format(DayFormat)
}

// RunCounts aggregates record dispositions for a run.
type RunCounts struct {
	Seen      int `json:"seen"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Dropped   int `json:"dropped"`
	DaysDone  int `json:"days_done"`
	DaysError int `json:"days_errored"`
}

// Add accumulates another set of counts into this one.
func (c *RunCounts) Add(other RunCounts) {
	c.Seen += other.Seen
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Unchanged += other.Unchanged
	c.Dropped += other.Dropped
	c.DaysDone += other.DaysDone
	c.DaysError += other.DaysError
}

// Run is one ingestion attempt recorded in the run ledger.
// Runs are append-only: they are created when an ingestion begins, mutated
// only by their own execution, and superseded rather than deleted.
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Entity       EntityType `json:"entity"`
	Environment  string     `json:"environment"`
	Range        DateRange  `json:"range"`
	Status       RunStatus  `json:"status"`
	Counts       RunCounts  `json:"counts"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ErrorSummary *string    `json:"error_summary,omitempty"`
}

// NewRun creates a pending run with a fresh identifier.
func NewRun(entity EntityType, environment string, dr DateRange) *Run {
	return &Run{
		ID:          uuid.New(),
		Entity:      entity,
		Environment: environment,
		Range:       dr,
		Status:      RunPending,
		StartedAt:   time.Now().UTC(),
	}
}
