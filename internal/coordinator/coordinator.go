// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

/* coordinator.go - Backfill Coordinator
 *
 * Drives a date-range plan across a bounded worker pool: each worker
 * executes fetch -> normalize -> persist for one day-unit at a time. The
 * pool is sized by configuration, not CPU count; the upstream rate limit
 * is the real constraint.
 *
 * Per-day state machine: queued -> fetching -> normalizing -> persisting
 * -> done | errored. Terminal outcomes are checkpointed per day, so a
 * killed run resumes with exactly the unfinished days.
 *
 * Failure semantics: a day-unit error never aborts sibling days. The run
 * completes with a non-zero error count if at least one day succeeded and
 * fails only when zero days succeed, when the run is canceled, or when
 * the wall-clock ceiling expires.
 */

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/dugout/internal/checkpoint"
	"github.com/tomtom215/dugout/internal/fetch"
	"github.com/tomtom215/dugout/internal/logging"
	"github.com/tomtom215/dugout/internal/metrics"
	"github.com/tomtom215/dugout/internal/models"
	"github.com/tomtom215/dugout/internal/normalize"
	"github.com/tomtom215/dugout/internal/planner"
	"github.com/tomtom215/dugout/internal/store"
)

// Options configures a Coordinator.
type Options struct {
	// Workers bounds the day-unit pool. Small values are normal.
	Workers int

	// RunTimeout is the wall-clock ceiling for one run. Zero disables it.
	RunTimeout time.Duration

	// Environment tags the run in the ledger.
	Environment string
}

// Coordinator fans a plan's day-units across the worker pool.
type Coordinator struct {
	target      store.Target
	fetcher     fetch.Fetcher
	checkpoints *checkpoint.Store
	opts        Options
}

// New creates a coordinator. The checkpoint store may be shared across
// entities; keys are scoped by (entity, range).
func New(target store.Target, fetcher fetch.Fetcher, checkpoints *checkpoint.Store, opts Options) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Coordinator{
		target:      target,
		fetcher:     fetcher,
		checkpoints: checkpoints,
		opts:        opts,
	}
}

// Summary is the outcome of one run, for the CLI and the ops API.
type Summary struct {
	Run         *models.Run
	Counts      models.RunCounts
	SkippedDays int               // done in a prior attempt, not re-fetched
	DayErrors   map[string]string // day -> error, for days that ended errored
	Canceled    bool
	TimedOut    bool
}

// dayOutcome is one worker's terminal result for a day-unit.
type dayOutcome struct {
	day      time.Time
	counts   models.RunCounts
	err      error
	canceled bool
}

// Execute runs the plan to completion. The returned Summary is valid even
// when err is non-nil, as long as a run was opened.
func (c *Coordinator) Execute(ctx context.Context, plan *planner.Plan) (*Summary, error) {
	entity := plan.Entity
	days := plan.Days()

	// Resume: a prior checkpoint's done days are skipped outright.
	completed := make(map[string]bool)
	if prior, found, err := c.checkpoints.Load(entity, plan.Range); err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	} else if found {
		completed = prior.CompletedDays()
		logging.Info().
			Str("entity", string(entity)).
			Str("range", plan.Range.String()).
			Int("days_done", len(completed)).
			Msg("Resuming from checkpoint")
	}

	pending := make([]time.Time, 0, len(days))
	for _, day := range days {
		if completed[day.Format(models.DayFormat)] {
			metrics.DayUnitsTotal.WithLabelValues(string(entity), "skipped").Inc()
			continue
		}
		pending = append(pending, day)
	}

	if err := c.checkpoints.Begin(entity, plan.Range, c.opts.Workers); err != nil {
		return nil, fmt.Errorf("begin checkpoint: %w", err)
	}

	// The run row must be durably committed before any worker persists a
	// record that references it.
	run := models.NewRun(entity, c.opts.Environment, plan.Range)
	if err := c.target.BeginRun(ctx, run); err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	logging.Info().
		Str("run_id", run.ID.String()).
		Str("entity", string(entity)).
		Str("mode", string(plan.Mode)).
		Str("range", plan.Range.String()).
		Int("days", len(pending)).
		Int("skipped", len(days)-len(pending)).
		Int("workers", c.opts.Workers).
		Msg("Run started")

	runCtx := ctx
	var cancel context.CancelFunc
	if c.opts.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.opts.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	outcomes := c.processDays(runCtx, run, entity, plan.Range, pending)
	metrics.RunDuration.WithLabelValues(string(entity), string(plan.Mode)).Observe(time.Since(start).Seconds())

	return c.finishRun(ctx, runCtx, run, plan, outcomes, len(days)-len(pending))
}

// processDays runs the worker pool over the pending day-units and collects
// terminal outcomes. Day errors never propagate through the group; partial
// failure is aggregated, not short-circuited.
func (c *Coordinator) processDays(runCtx context.Context, run *models.Run, entity models.EntityType, dr models.DateRange, pending []time.Time) []dayOutcome {
	var (
		mu       sync.Mutex
		outcomes []dayOutcome
	)

	var g errgroup.Group
	g.SetLimit(c.opts.Workers)

	for _, day := range pending {
		day := day
		g.Go(func() error {
			// Stop pulling new work once canceled; queued days stay
			// queued for resume.
			if runCtx.Err() != nil {
				return nil
			}
			outcome := c.processDay(runCtx, run, entity, day)

			if outcome.err != nil && !outcome.canceled {
				if err := c.checkpoints.Record(entity, dr, models.DayProgress{
					Day: day, State: models.DayErrored, Error: outcome.err.Error(),
				}); err != nil {
					logging.Error().Err(err).Str("day", day.Format(models.DayFormat)).Msg("Failed to checkpoint errored day")
				}
			}
			if outcome.err == nil {
				if err := c.checkpoints.Record(entity, dr, models.DayProgress{
					Day: day, State: models.DayDone,
				}); err != nil {
					logging.Error().Err(err).Str("day", day.Format(models.DayFormat)).Msg("Failed to checkpoint completed day")
				}
			}

			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return outcomes
}

// processDay executes fetch -> normalize -> persist for one day-unit.
func (c *Coordinator) processDay(runCtx context.Context, run *models.Run, entity models.EntityType, day time.Time) dayOutcome {
	outcome := dayOutcome{day: day}
	dayStr := day.Format(models.DayFormat)
	log := logging.With().
		Str("run_id", run.ID.String()).
		Str("entity", string(entity)).
		Str("day", dayStr).
		Logger()

	// fetching
	raws, err := c.fetcher.FetchDay(runCtx, entity, day)
	if err != nil {
		if runCtx.Err() != nil {
			// Interrupted mid-fetch: nothing written, leave the day
			// queued for resume.
			outcome.canceled = true
			outcome.err = runCtx.Err()
			return outcome
		}
		outcome.err = fmt.Errorf("fetch: %w", err)
		log.Error().Err(err).Msg("Day-unit fetch failed")
		metrics.DayUnitsTotal.WithLabelValues(string(entity), "errored").Inc()
		return outcome
	}

	// normalizing
	records, warnings, err := normalize.Normalize(entity, day, raws)
	if err != nil {
		outcome.err = fmt.Errorf("normalize: %w", err)
		log.Error().Err(err).Msg("Day-unit normalization failed")
		metrics.DayUnitsTotal.WithLabelValues(string(entity), "errored").Inc()
		return outcome
	}
	for _, w := range warnings {
		log.Warn().Int("index", w.Index).Str("reason", w.Reason).Str("field", w.Field).Msg("Record dropped during normalization")
		metrics.NormalizeWarningsTotal.WithLabelValues(string(entity), w.Reason).Inc()
	}

	// persisting: runs to completion even under cancellation, so a
	// cancel signal can never leave a day half-written.
	persistCtx := context.WithoutCancel(runCtx)
	result, err := c.target.ApplyBatch(persistCtx, run.ID, records)
	if err != nil {
		outcome.err = fmt.Errorf("persist: %w", err)
		log.Error().Err(err).Msg("Day-unit persistence failed")
		metrics.DayUnitsTotal.WithLabelValues(string(entity), "errored").Inc()
		return outcome
	}

	outcome.counts = models.RunCounts{
		Seen:      len(raws),
		Inserted:  result.Inserted,
		Updated:   result.Updated,
		Unchanged: result.Unchanged,
		Dropped:   len(warnings),
		DaysDone:  1,
	}
	metrics.DayUnitsTotal.WithLabelValues(string(entity), "done").Inc()
	metrics.RecordsTotal.WithLabelValues(string(entity), "inserted").Add(float64(result.Inserted))
	metrics.RecordsTotal.WithLabelValues(string(entity), "updated").Add(float64(result.Updated))
	metrics.RecordsTotal.WithLabelValues(string(entity), "unchanged").Add(float64(result.Unchanged))
	metrics.RecordsTotal.WithLabelValues(string(entity), "dropped").Add(float64(len(warnings)))

	log.Debug().
		Int("seen", len(raws)).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("dropped", len(warnings)).
		Msg("Day-unit complete")

	return outcome
}

// finishRun aggregates outcomes, finalizes the ledger row, and sweeps the
// checkpoint when everything is done.
func (c *Coordinator) finishRun(ctx, runCtx context.Context, run *models.Run, plan *planner.Plan, outcomes []dayOutcome, skipped int) (*Summary, error) {
	summary := &Summary{
		Run:         run,
		SkippedDays: skipped,
		DayErrors:   make(map[string]string),
	}
	interrupted := 0
	for _, o := range outcomes {
		if o.canceled {
			interrupted++
			continue
		}
		if o.err != nil {
			summary.Counts.DaysError++
			summary.DayErrors[o.day.Format(models.DayFormat)] = o.err.Error()
			continue
		}
		summary.Counts.Add(o.counts)
	}

	// Ledger finalization must succeed even after cancellation.
	finishCtx := context.WithoutCancel(ctx)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		summary.TimedOut = true
		msg := fmt.Sprintf("run timeout %s exceeded after %d of %d days", c.opts.RunTimeout,
			summary.Counts.DaysDone, len(outcomes)+skipped+interrupted)
		if err := c.target.FailRun(finishCtx, run.ID, summary.Counts, msg); err != nil {
			return summary, fmt.Errorf("fail run: %w", err)
		}
		run.Status = models.RunFailed
		logging.Warn().Str("run_id", run.ID.String()).Msg("Run failed: wall-clock ceiling exceeded")
		return summary, nil

	case runCtx.Err() != nil:
		summary.Canceled = true
		msg := fmt.Sprintf("run canceled after %d of %d days", summary.Counts.DaysDone,
			len(outcomes)+skipped+interrupted)
		if err := c.target.FailRun(finishCtx, run.ID, summary.Counts, msg); err != nil {
			return summary, fmt.Errorf("fail run: %w", err)
		}
		run.Status = models.RunFailed
		logging.Warn().Str("run_id", run.ID.String()).Msg("Run failed: canceled")
		return summary, nil

	case summary.Counts.DaysDone == 0 && summary.Counts.DaysError > 0:
		msg := fmt.Sprintf("all %d day-units failed; first error: %s",
			summary.Counts.DaysError, firstError(summary.DayErrors))
		if err := c.target.FailRun(finishCtx, run.ID, summary.Counts, msg); err != nil {
			return summary, fmt.Errorf("fail run: %w", err)
		}
		run.Status = models.RunFailed
		logging.Error().Str("run_id", run.ID.String()).Int("days_error", summary.Counts.DaysError).Msg("Run failed: zero days succeeded")
		return summary, nil

	default:
		if err := c.target.CompleteRun(finishCtx, run.ID, summary.Counts); err != nil {
			return summary, fmt.Errorf("complete run: %w", err)
		}
		run.Status = models.RunCompleted

		// Sweep the checkpoint only when nothing is left to resume.
		if summary.Counts.DaysError == 0 {
			if err := c.checkpoints.Clear(plan.Entity, plan.Range); err != nil {
				logging.Warn().Err(err).Msg("Failed to clear checkpoint after successful run")
			}
		}

		logging.Info().
			Str("run_id", run.ID.String()).
			Int("days_done", summary.Counts.DaysDone).
			Int("days_error", summary.Counts.DaysError).
			Int("inserted", summary.Counts.Inserted).
			Int("updated", summary.Counts.Updated).
			Int("unchanged", summary.Counts.Unchanged).
			Int("dropped", summary.Counts.Dropped).
			Msg("Run completed")
		return summary, nil
	}
}

func firstError(dayErrors map[string]string) string {
	for _, msg := range dayErrors {
		return msg
	}
	return ""
}
