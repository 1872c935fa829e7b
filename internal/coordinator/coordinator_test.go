// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dugout/internal/checkpoint"
	"github.com/tomtom215/dugout/internal/ledger"
	"github.com/tomtom215/dugout/internal/models"
	"github.com/tomtom215/dugout/internal/planner"
	"github.com/tomtom215/dugout/internal/store"
)

// fakeTarget is an in-memory store.Target tracking calls and state.
type fakeTarget struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]*models.Run
	records map[string]string // natural key -> fingerprint

	failDay      string // day whose batch persist is structurally rejected
	firstBatchCh chan struct{}
	firstBatch   sync.Once
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		runs:    make(map[uuid.UUID]*models.Run),
		records: make(map[string]string),
	}
}

func (f *fakeTarget) Name() string { return "fake" }
func (f *fakeTarget) Close() error { return nil }

func (f *fakeTarget) BeginRun(_ context.Context, run *models.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.Status = models.RunRunning
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeTarget) CompleteRun(_ context.Context, runID uuid.UUID, counts models.RunCounts) error {
	return f.finish(runID, models.RunCompleted, counts, nil)
}

func (f *fakeTarget) FailRun(_ context.Context, runID uuid.UUID, counts models.RunCounts, summary string) error {
	return f.finish(runID, models.RunFailed, counts, &summary)
}

func (f *fakeTarget) finish(runID uuid.UUID, status models.RunStatus, counts models.RunCounts, summary *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return ledger.ErrRunNotFound
	}
	if !run.Status.CanTransition(status) {
		return fmt.Errorf("run %s cannot transition %s -> %s", runID, run.Status, status)
	}
	run.Status = status
	run.Counts = counts
	run.ErrorSummary = summary
	return nil
}

func (f *fakeTarget) GetRun(_ context.Context, runID uuid.UUID) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, ledger.ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (f *fakeTarget) RecentRuns(_ context.Context, limit int) ([]*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var runs []*models.Run
	for _, run := range f.runs {
		copied := *run
		runs = append(runs, &copied)
	}
	return runs, nil
}

func (f *fakeTarget) ApplyBatch(_ context.Context, runID uuid.UUID, records []models.CanonicalRecord) (models.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.runs[runID]; !ok {
		return models.BatchResult{}, store.ErrRunNotConfirmed
	}

	var result models.BatchResult
	for _, rec := range records {
		if f.failDay != "" && rec.Day.Format(models.DayFormat) == f.failDay {
			return models.BatchResult{}, fmt.Errorf("%w: constraint violation", store.ErrBatchRejected)
		}
		existing, found := f.records[rec.NaturalKey]
		switch {
		case !found:
			f.records[rec.NaturalKey] = rec.Fingerprint
			result.Inserted++
		case existing == rec.Fingerprint:
			result.Unchanged++
		default:
			f.records[rec.NaturalKey] = rec.Fingerprint
			result.Updated++
		}
	}

	if f.firstBatchCh != nil {
		f.firstBatch.Do(func() { close(f.firstBatchCh) })
	}
	return result, nil
}

func (f *fakeTarget) LatestRecordDate(_ context.Context, _ models.EntityType) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

// fakeFetcher serves two lineup records per day and counts calls. Days in
// failDays return an error; blockDays wait for cancellation first.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     map[string]int
	failDays  map[string]bool
	blockDays map[string]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:     make(map[string]int),
		failDays:  make(map[string]bool),
		blockDays: make(map[string]bool),
	}
}

func (f *fakeFetcher) FetchDay(ctx context.Context, _ models.EntityType, day time.Time) ([]models.RawRecord, error) {
	key := day.Format(models.DayFormat)
	f.mu.Lock()
	f.calls[key]++
	fail := f.failDays[key]
	block := f.blockDays[key]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, fmt.Errorf("fetch %s: HTTP 503", key)
	}
	return []models.RawRecord{
		models.RawRecord(fmt.Sprintf(`{"teamId":"BOS","battingSlot":1,"playerId":"p-%s-1"}`, key)),
		models.RawRecord(fmt.Sprintf(`{"teamId":"BOS","battingSlot":2,"playerId":"p-%s-2"}`, key)),
	}, nil
}

func (f *fakeFetcher) callCount(day string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[day]
}

func newTestCheckpoints(t *testing.T) *checkpoint.Store {
	t.Helper()
	cps, err := checkpoint.OpenInMemory()
	if err != nil {
		t.Fatalf("open checkpoint store: %v", err)
	}
	t.Cleanup(func() {
		if err := cps.Close(); err != nil {
			t.Errorf("close checkpoint store: %v", err)
		}
	})
	return cps
}

func backfillPlan(t *testing.T, from, to string) *planner.Plan {
	t.Helper()
	start, err := time.Parse(models.DayFormat, from)
	if err != nil {
		t.Fatalf("parse %q: %v", from, err)
	}
	end, err := time.Parse(models.DayFormat, to)
	if err != nil {
		t.Fatalf("parse %q: %v", to, err)
	}
	dr, err := models.NewDateRange(start, end)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	return &planner.Plan{Entity: models.EntityLineups, Mode: planner.ModeBackfill, Range: dr}
}

func TestAllDaysSucceed(t *testing.T) {
	target := newFakeTarget()
	fetcher := newFakeFetcher()
	cps := newTestCheckpoints(t)
	c := New(target, fetcher, cps, Options{Workers: 2, Environment: "test"})

	plan := backfillPlan(t, "2026-04-10", "2026-04-12")
	summary, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if summary.Run.Status != models.RunCompleted {
		t.Errorf("status = %s, want completed", summary.Run.Status)
	}
	if summary.Counts.DaysDone != 3 || summary.Counts.DaysError != 0 {
		t.Errorf("days = %d done %d errored, want 3/0", summary.Counts.DaysDone, summary.Counts.DaysError)
	}
	if summary.Counts.Seen != 6 || summary.Counts.Inserted != 6 {
		t.Errorf("counts = %+v, want 6 seen 6 inserted", summary.Counts)
	}

	// Fully successful: checkpoint swept.
	if _, found, _ := cps.Load(plan.Entity, plan.Range); found {
		t.Error("checkpoint survived a fully successful run")
	}
}

func TestPartialFailureCompletesWithErrorCount(t *testing.T) {
	target := newFakeTarget()
	target.failDay = "2026-04-05"
	fetcher := newFakeFetcher()
	cps := newTestCheckpoints(t)
	c := New(target, fetcher, cps, Options{Workers: 3, Environment: "test"})

	// 10 days, pool of 3, one day's persistence rejects structurally.
	plan := backfillPlan(t, "2026-04-01", "2026-04-10")
	summary, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if summary.Run.Status != models.RunCompleted {
		t.Errorf("status = %s, want completed (partial failure)", summary.Run.Status)
	}
	if summary.Counts.DaysDone != 9 || summary.Counts.DaysError != 1 {
		t.Errorf("days = %d done %d errored, want 9/1", summary.Counts.DaysDone, summary.Counts.DaysError)
	}
	if msg, ok := summary.DayErrors["2026-04-05"]; !ok || msg == "" {
		t.Errorf("DayErrors = %v, want entry for 2026-04-05", summary.DayErrors)
	}

	// Checkpoint retained with the errored day for a later retry.
	cp, found, err := cps.Load(plan.Entity, plan.Range)
	if err != nil {
		t.Fatalf("Load checkpoint: %v", err)
	}
	if !found {
		t.Fatal("checkpoint swept despite an errored day")
	}
	if cp.Days["2026-04-05"].State != models.DayErrored {
		t.Errorf("errored day state = %s", cp.Days["2026-04-05"].State)
	}
	if len(cp.CompletedDays()) != 9 {
		t.Errorf("completed days = %d, want 9", len(cp.CompletedDays()))
	}
}

func TestZeroDaysSucceededFailsRun(t *testing.T) {
	target := newFakeTarget()
	fetcher := newFakeFetcher()
	cps := newTestCheckpoints(t)

	plan := backfillPlan(t, "2026-04-10", "2026-04-12")
	for _, day := range plan.Days() {
		fetcher.failDays[day.Format(models.DayFormat)] = true
	}

	c := New(target, fetcher, cps, Options{Workers: 2, Environment: "test"})
	summary, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if summary.Run.Status != models.RunFailed {
		t.Errorf("status = %s, want failed", summary.Run.Status)
	}
	if summary.Counts.DaysError != 3 {
		t.Errorf("days errored = %d, want 3", summary.Counts.DaysError)
	}

	got, err := target.GetRun(context.Background(), summary.Run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ErrorSummary == nil {
		t.Error("failed run has no error summary")
	}
}

func TestResumeProcessesOnlyRemainingDays(t *testing.T) {
	target := newFakeTarget()
	fetcher := newFakeFetcher()
	cps := newTestCheckpoints(t)

	plan := backfillPlan(t, "2026-04-01", "2026-04-10")

	// A prior attempt completed the first 6 days.
	days := plan.Days()
	if err := cps.Begin(plan.Entity, plan.Range, 3); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, day := range days[:6] {
		if err := cps.Record(plan.Entity, plan.Range,
			models.DayProgress{Day: day, State: models.DayDone}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	c := New(target, fetcher, cps, Options{Workers: 3, Environment: "test"})
	summary, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if summary.SkippedDays != 6 {
		t.Errorf("skipped = %d, want 6", summary.SkippedDays)
	}
	if summary.Counts.DaysDone != 4 {
		t.Errorf("days done = %d, want the remaining 4", summary.Counts.DaysDone)
	}
	for _, day := range days[:6] {
		if n := fetcher.callCount(day.Format(models.DayFormat)); n != 0 {
			t.Errorf("completed day %s re-fetched %d times", day.Format(models.DayFormat), n)
		}
	}
	for _, day := range days[6:] {
		if n := fetcher.callCount(day.Format(models.DayFormat)); n != 1 {
			t.Errorf("remaining day %s fetched %d times, want 1", day.Format(models.DayFormat), n)
		}
	}
}

func TestRetryAfterPartialFailureSkipsDoneDays(t *testing.T) {
	target := newFakeTarget()
	target.failDay = "2026-04-02"
	fetcher := newFakeFetcher()
	cps := newTestCheckpoints(t)
	plan := backfillPlan(t, "2026-04-01", "2026-04-03")

	c := New(target, fetcher, cps, Options{Workers: 1, Environment: "test"})
	if _, err := c.Execute(context.Background(), plan); err != nil {
		t.Fatalf("first Execute: %v", err)
	}

	// Fix the structural failure and re-run the same parameters: only the
	// errored day is re-processed, and its records finally land.
	target.failDay = ""
	summary, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if summary.SkippedDays != 2 || summary.Counts.DaysDone != 1 {
		t.Errorf("second run skipped=%d done=%d, want 2/1", summary.SkippedDays, summary.Counts.DaysDone)
	}
	if n := fetcher.callCount("2026-04-02"); n != 2 {
		t.Errorf("errored day fetched %d times total, want 2", n)
	}

	// Everything done now: checkpoint swept.
	if _, found, _ := cps.Load(plan.Entity, plan.Range); found {
		t.Error("checkpoint survived the successful retry")
	}
}

func TestReingestedUnchangedRecordsCountUnchanged(t *testing.T) {
	target := newFakeTarget()
	fetcher := newFakeFetcher()
	plan := backfillPlan(t, "2026-04-10", "2026-04-10")

	first := New(target, fetcher, newTestCheckpoints(t), Options{Workers: 1, Environment: "test"})
	if _, err := first.Execute(context.Background(), plan); err != nil {
		t.Fatalf("first Execute: %v", err)
	}

	second := New(target, fetcher, newTestCheckpoints(t), Options{Workers: 1, Environment: "test"})
	summary, err := second.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if summary.Counts.Inserted != 0 || summary.Counts.Unchanged != 2 {
		t.Errorf("counts = %+v, want 0 inserted 2 unchanged", summary.Counts)
	}
}

func TestCancellationLeavesUnstartedDaysQueued(t *testing.T) {
	target := newFakeTarget()
	target.firstBatchCh = make(chan struct{})
	fetcher := newFakeFetcher()
	fetcher.blockDays["2026-04-11"] = true
	fetcher.blockDays["2026-04-12"] = true
	cps := newTestCheckpoints(t)
	plan := backfillPlan(t, "2026-04-10", "2026-04-12")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		// Cancel as soon as the first day has persisted.
		<-target.firstBatchCh
		cancel()
	}()

	c := New(target, fetcher, cps, Options{Workers: 1, Environment: "test"})
	summary, err := c.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !summary.Canceled {
		t.Error("summary not marked canceled")
	}
	if summary.Run.Status != models.RunFailed {
		t.Errorf("status = %s, want failed", summary.Run.Status)
	}
	if summary.Counts.DaysDone != 1 {
		t.Errorf("days done = %d, want 1 (first day finished its persist)", summary.Counts.DaysDone)
	}

	// Interrupted and unstarted days are neither done nor errored: they
	// stay queued for resume.
	cp, found, err := cps.Load(plan.Entity, plan.Range)
	if err != nil {
		t.Fatalf("Load checkpoint: %v", err)
	}
	if !found {
		t.Fatal("checkpoint missing after cancellation")
	}
	if len(cp.CompletedDays()) != 1 {
		t.Errorf("completed days = %d, want 1", len(cp.CompletedDays()))
	}
	if cp.Days["2026-04-11"].State == models.DayErrored || cp.Days["2026-04-12"].State == models.DayErrored {
		t.Error("canceled days recorded as errored")
	}
}

func TestRunTimeoutFailsWithPartialCounts(t *testing.T) {
	target := newFakeTarget()
	fetcher := newFakeFetcher()
	fetcher.blockDays["2026-04-11"] = true
	fetcher.blockDays["2026-04-12"] = true
	cps := newTestCheckpoints(t)
	plan := backfillPlan(t, "2026-04-10", "2026-04-12")

	c := New(target, fetcher, cps, Options{
		Workers:     1,
		RunTimeout:  250 * time.Millisecond,
		Environment: "test",
	})
	summary, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !summary.TimedOut {
		t.Error("summary not marked timed out")
	}
	if summary.Run.Status != models.RunFailed {
		t.Errorf("status = %s, want failed", summary.Run.Status)
	}
	if summary.Counts.DaysDone != 1 {
		t.Errorf("days done = %d, want 1 (partial counts preserved)", summary.Counts.DaysDone)
	}

	got, err := target.GetRun(context.Background(), summary.Run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunFailed || got.Counts.DaysDone != 1 {
		t.Errorf("ledger run = %+v", got)
	}
}

func TestDroppedRecordsCountedNotFatal(t *testing.T) {
	target := newFakeTarget()
	cps := newTestCheckpoints(t)
	plan := backfillPlan(t, "2026-04-10", "2026-04-10")

	// One record is missing its batting slot and gets dropped.
	c := New(target, &droppingFetcher{}, cps, Options{Workers: 1, Environment: "test"})
	summary, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Run.Status != models.RunCompleted {
		t.Errorf("status = %s, want completed", summary.Run.Status)
	}
	if summary.Counts.Seen != 2 || summary.Counts.Inserted != 1 || summary.Counts.Dropped != 1 {
		t.Errorf("counts = %+v, want 2 seen 1 inserted 1 dropped", summary.Counts)
	}
}

// droppingFetcher returns one valid and one key-less record.
type droppingFetcher struct{}

func (d *droppingFetcher) FetchDay(_ context.Context, _ models.EntityType, _ time.Time) ([]models.RawRecord, error) {
	return []models.RawRecord{
		models.RawRecord(`{"teamId":"BOS","battingSlot":1,"playerId":"p1"}`),
		models.RawRecord(`{"teamId":"BOS","playerId":"p2"}`),
	}, nil
}
