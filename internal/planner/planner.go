// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

// Package planner computes the ordered list of calendar days an ingestion
// run must process, given a planning mode and the state of the record store.
//
// Four modes are supported:
//
//   - Backfill: an explicit range or a whole season
//   - Incremental: a fixed lookback window ending today, revisiting recent
//     days to catch upstream corrections
//   - SinceLast: everything after the latest day present in the store
//   - SingleDate: exactly one day
//
// SinceLast against an empty store returns ErrFullBackfillRequired rather
// than silently producing an empty plan.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/dugout/internal/models"
)

var (
	// ErrFullBackfillRequired signals that since-last planning found no prior
	// data for the entity, so the caller must choose a backfill range.
	ErrFullBackfillRequired = errors.New("no prior data for entity: full backfill required")

	// ErrUpToDate signals that since-last planning found the store already
	// current through today. Callers treat this as a successful no-op.
	ErrUpToDate = errors.New("record store is already current through today")
)

// ModeKind discriminates the planning modes.
type ModeKind string

const (
	ModeBackfill    ModeKind = "backfill"
	ModeIncremental ModeKind = "incremental"
	ModeSinceLast   ModeKind = "since-last"
	ModeSingleDate  ModeKind = "single-date"
)

// ParseModeKind validates and returns a ModeKind from its string form.
func ParseModeKind(s string) (ModeKind, error) {
	switch ModeKind(s) {
	case ModeBackfill, ModeIncremental, ModeSinceLast, ModeSingleDate:
		return ModeKind(s), nil
	default:
		return "", fmt.Errorf("unknown planner mode %q", s)
	}
}

// Mode is a fully-specified planning request.
type Mode struct {
	Kind ModeKind

	// Range is used by ModeBackfill when an explicit range is given.
	Range models.DateRange

	// LookbackDays is used by ModeIncremental.
	LookbackDays int

	// Date is used by ModeSingleDate.
	Date time.Time
}

// Backfill plans an explicit closed range.
func Backfill(dr models.DateRange) Mode {
	return Mode{Kind: ModeBackfill, Range: dr}
}

// SeasonRange returns the calendar range covering one season year, from
// March 1 through November 30 (spring roster moves through the postseason).
func SeasonRange(year int) models.DateRange {
	return models.DateRange{
		Start: time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.November, 30, 0, 0, 0, 0, time.UTC),
	}
}

// Incremental plans a fixed lookback window ending today. The window is
// re-fetched regardless of prior data so upstream corrections are caught.
func Incremental(lookbackDays int) Mode {
	return Mode{Kind: ModeIncremental, LookbackDays: lookbackDays}
}

// SinceLast plans everything after the latest day present in the store.
func SinceLast() Mode {
	return Mode{Kind: ModeSinceLast}
}

// SingleDate plans exactly one day.
func SingleDate(day time.Time) Mode {
	return Mode{Kind: ModeSingleDate, Date: day}
}

// Plan is the ephemeral output of the planner: a closed, inclusive,
// chronologically ordered list of day-units. It is never persisted.
type Plan struct {
	Entity models.EntityType
	Mode   ModeKind
	Range  models.DateRange
}

// Days expands the plan into its ordered day-units, oldest first.
func (p *Plan) Days() []time.Time {
	return p.Range.Days()
}

// LatestDateSource answers "what is the most recent day present in the
// canonical record store for an entity". Implemented by both persistence
// targets.
type LatestDateSource interface {
	LatestRecordDate(ctx context.Context, entity models.EntityType) (time.Time, bool, error)
}

// Planner derives day-range plans. The zero value is not usable; construct
// with New.
type Planner struct {
	source LatestDateSource
	now    func() time.Time
}

// New creates a Planner reading prior state from source.
func New(source LatestDateSource) *Planner {
	return &Planner{source: source, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (p *Planner) WithNow(now func() time.Time) *Planner {
	p.now = now
	return p
}

// Plan computes the day-units to process for an entity under a mode.
// Invalid inputs (end < start, non-positive lookback) are input errors, not
// silently empty plans.
func (p *Planner) Plan(ctx context.Context, entity models.EntityType, mode Mode) (*Plan, error) {
	today := models.DayOf(p.now())

	var (
		dr  models.DateRange
		err error
	)
	switch mode.Kind {
	case ModeBackfill:
		dr, err = models.NewDateRange(mode.Range.Start, mode.Range.End)
		if err != nil {
			return nil, err
		}
	case ModeIncremental:
		if mode.LookbackDays <= 0 {
			return nil, fmt.Errorf("incremental mode requires a positive lookback, got %d", mode.LookbackDays)
		}
		dr = models.DateRange{Start: today.AddDate(0, 0, -mode.LookbackDays), End: today}
	case ModeSinceLast:
		dr, err = p.planSinceLast(ctx, entity, today)
		if err != nil {
			return nil, err
		}
	case ModeSingleDate:
		if mode.Date.IsZero() {
			return nil, fmt.Errorf("single-date mode requires a date")
		}
		d := models.DayOf(mode.Date)
		dr = models.DateRange{Start: d, End: d}
	default:
		return nil, fmt.Errorf("unknown planner mode %q", mode.Kind)
	}

	return &Plan{Entity: entity, Mode: mode.Kind, Range: dr}, nil
}

// planSinceLast computes [max(date)+1, today] from the record store.
func (p *Planner) planSinceLast(ctx context.Context, entity models.EntityType, today time.Time) (models.DateRange, error) {
	latest, found, err := p.source.LatestRecordDate(ctx, entity)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("query latest record date: %w", err)
	}
	if !found {
		return models.DateRange{}, ErrFullBackfillRequired
	}

	start := models.DayOf(latest).AddDate(0, 0, 1)
	if start.After(today) {
		return models.DateRange{}, ErrUpToDate
	}
	return models.DateRange{Start: start, End: today}, nil
}
