// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

// Package main is the entry point for the Dugout ingestion CLI.
//
// Dugout incrementally synchronizes time-partitioned sports records
// (roster moves, lineups, player box-score stats) from an upstream API
// into a canonical record store, with a full audit trail of every run.
//
// # Application Architecture
//
// One invocation performs one run:
//
//  1. Configuration: Load settings from environment variables and an
//     optional config.yaml (Koanf v2)
//  2. Target: Open the persistence target - embedded DuckDB or the
//     remote batched-statement store
//  3. Planner: Derive the closed day range for the requested mode
//  4. Fetcher: Rate-limited upstream client, optionally wrapped in a
//     circuit breaker
//  5. Coordinator: Fan day-units across the worker pool with
//     checkpointed resume
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config.yaml, built-in defaults.
//
// Upstream API:
//   - SOURCE_URL: Base URL of the upstream sports data API
//   - SOURCE_TOKEN: Static bearer token, or
//   - SOURCE_TOKEN_URL + SOURCE_CLIENT_ID + SOURCE_CLIENT_SECRET for
//     refreshable credentials
//   - SOURCE_REQUESTS_PER_SECOND: Shared ceiling across all workers
//
// Persistence target (selected with -target):
//   - DUCKDB_PATH: Embedded database file
//   - REMOTE_URL + REMOTE_API_TOKEN: Remote batch endpoint
//
// # Example Usage
//
// Backfill one season into the embedded store:
//
//	export SOURCE_URL=https://api.example.com
//	export SOURCE_TOKEN=your-token
//	dugout -entity roster-moves -mode backfill -season 2025
//
// Nightly incremental sync with a 3-day correction window:
//
//	dugout -entity player-stats -mode incremental -lookback 3
//
// Catch up everything since the last ingested day, into the remote store:
//
//	export REMOTE_URL=https://warehouse.example.com
//	export REMOTE_API_TOKEN=your-token
//	dugout -entity lineups -mode since-last -target remote
//
// # Exit Codes
//
//	0 - run completed with every day-unit done (or nothing to do)
//	1 - run failed, or configuration was invalid
//	2 - run completed but some day-units errored (retry with the same
//	    arguments to re-process only the errored days)
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the run gracefully: in-flight persists finish,
// fetches are abandoned, and the checkpoint keeps unfinished days queued
// so the next invocation resumes where this one stopped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/dugout/internal/api"
	"github.com/tomtom215/dugout/internal/checkpoint"
	"github.com/tomtom215/dugout/internal/config"
	"github.com/tomtom215/dugout/internal/coordinator"
	"github.com/tomtom215/dugout/internal/fetch"
	"github.com/tomtom215/dugout/internal/logging"
	"github.com/tomtom215/dugout/internal/models"
	"github.com/tomtom215/dugout/internal/planner"
	"github.com/tomtom215/dugout/internal/store"
	"github.com/tomtom215/dugout/internal/store/duck"
	"github.com/tomtom215/dugout/internal/store/remote"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

type cliArgs struct {
	entity   string
	mode     string
	from     string
	to       string
	date     string
	season   int
	lookback  int
	workers   int
	target    string
	env       string
	opsListen string
	timeout   time.Duration
}

func main() {
	os.Exit(run())
}

//nolint:gocyclo // Sequential CLI setup steps
func run() int {
	var args cliArgs
	flag.StringVar(&args.entity, "entity", "", "entity to ingest: roster-moves, lineups, player-stats")
	flag.StringVar(&args.mode, "mode", "", "planning mode: backfill, incremental, since-last, single-date")
	flag.StringVar(&args.from, "from", "", "backfill range start (YYYY-MM-DD)")
	flag.StringVar(&args.to, "to", "", "backfill range end (YYYY-MM-DD)")
	flag.StringVar(&args.date, "date", "", "single-date mode day (YYYY-MM-DD)")
	flag.IntVar(&args.season, "season", 0, "backfill one season year (March through November)")
	flag.IntVar(&args.lookback, "lookback", 0, "incremental lookback window in days (default from config)")
	flag.IntVar(&args.workers, "workers", 0, "worker pool size (default from config)")
	flag.StringVar(&args.target, "target", "duckdb", "persistence target: duckdb or remote")
	flag.StringVar(&args.env, "env", "", "environment tag for the run ledger (default from config)")
	flag.StringVar(&args.opsListen, "ops-listen", "", "ops API listen address (default from config; empty disables)")
	flag.DurationVar(&args.timeout, "timeout", 0, "wall-clock ceiling for the run (default from config)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return exitFailed
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	entity, err := models.ParseEntityType(args.entity)
	if err != nil {
		logging.Error().Err(err).Msg("Invalid -entity")
		return exitFailed
	}

	target, err := openTarget(args.target, cfg)
	if err != nil {
		logging.Error().Err(err).Str("target", args.target).Msg("Failed to open persistence target")
		return exitFailed
	}
	defer store.CloseQuietly(target)

	fetcher, err := buildFetcher(&cfg.Source)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to configure upstream client")
		return exitFailed
	}

	checkpoints, err := checkpoint.Open(cfg.Sync.CheckpointPath)
	if err != nil {
		logging.Error().Err(err).Str("path", cfg.Sync.CheckpointPath).Msg("Failed to open checkpoint store")
		return exitFailed
	}
	defer func() {
		if err := checkpoints.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing checkpoint store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The ops API is optional and read-only; it never gates ingestion.
	opsListen := cfg.Ops.Listen
	if args.opsListen != "" {
		opsListen = args.opsListen
	}
	if opsListen != "" {
		go func() {
			if err := api.New(target, target.Name()).ListenAndServe(ctx, opsListen); err != nil {
				logging.Error().Err(err).Msg("Ops API stopped")
			}
		}()
	}

	mode, err := buildMode(args, cfg)
	if err != nil {
		logging.Error().Err(err).Msg("Invalid mode arguments")
		return exitFailed
	}

	plan, err := planner.New(target).Plan(ctx, entity, mode)
	switch {
	case errors.Is(err, planner.ErrUpToDate):
		logging.Info().Str("entity", string(entity)).Msg("Store already current through today; nothing to do")
		return exitOK
	case errors.Is(err, planner.ErrFullBackfillRequired):
		logging.Error().Str("entity", string(entity)).
			Msg("No prior data for since-last mode; run an explicit backfill first")
		return exitFailed
	case err != nil:
		logging.Error().Err(err).Msg("Planning failed")
		return exitFailed
	}

	workers := cfg.Sync.Workers
	if args.workers > 0 {
		workers = args.workers
	}
	runTimeout := cfg.Sync.RunTimeout
	if args.timeout > 0 {
		runTimeout = args.timeout
	}
	environment := cfg.Sync.Environment
	if args.env != "" {
		environment = args.env
	}
	coord := coordinator.New(target, fetcher, checkpoints, coordinator.Options{
		Workers:     workers,
		RunTimeout:  runTimeout,
		Environment: environment,
	})

	summary, err := coord.Execute(ctx, plan)
	if err != nil {
		logging.Error().Err(err).Msg("Run aborted")
		return exitFailed
	}

	logging.Info().
		Str("run_id", summary.Run.ID.String()).
		Str("status", string(summary.Run.Status)).
		Int("days_done", summary.Counts.DaysDone).
		Int("days_errored", summary.Counts.DaysError).
		Int("days_skipped", summary.SkippedDays).
		Int("inserted", summary.Counts.Inserted).
		Int("updated", summary.Counts.Updated).
		Int("unchanged", summary.Counts.Unchanged).
		Int("dropped", summary.Counts.Dropped).
		Msg("Run finished")

	switch {
	case summary.Run.Status != models.RunCompleted:
		return exitFailed
	case summary.Counts.DaysError > 0:
		return exitPartial
	default:
		return exitOK
	}
}

// openTarget selects and opens the persistence target.
func openTarget(name string, cfg *config.Config) (store.Target, error) {
	switch name {
	case "duckdb":
		return duck.New(&cfg.Database)
	case "remote":
		if cfg.Remote.URL == "" {
			return nil, errors.New("remote target requires REMOTE_URL")
		}
		return remote.New(&cfg.Remote), nil
	default:
		return nil, fmt.Errorf("unknown target %q (want duckdb or remote)", name)
	}
}

// buildFetcher assembles the upstream client: credential provider, shared
// rate limiter, retry policy, and the optional circuit breaker.
func buildFetcher(src *config.SourceConfig) (fetch.Fetcher, error) {
	var creds fetch.CredentialProvider
	switch {
	case src.TokenURL != "":
		creds = fetch.NewTokenEndpointProvider(src.TokenURL, src.ClientID, src.ClientSecret, src.Timeout)
	case src.Token != "":
		creds = fetch.NewStaticProvider(src.Token)
	default:
		return nil, errors.New("either SOURCE_TOKEN or SOURCE_TOKEN_URL must be set")
	}

	var fetcher fetch.Fetcher = fetch.NewClient(fetch.Options{
		BaseURL:           src.URL,
		RequestsPerSecond: src.RequestsPerSecond,
		Burst:             src.Burst,
		Timeout:           src.Timeout,
		Retry: fetch.Backoff{
			Base:     src.RetryBaseDelay,
			Max:      src.RetryMaxDelay,
			Attempts: src.RetryAttempts,
		},
	}, creds)

	if src.BreakerEnabled {
		fetcher = fetch.NewBreakerFetcher(fetcher)
	}
	return fetcher, nil
}

// buildMode translates CLI arguments into a planner mode.
func buildMode(args cliArgs, cfg *config.Config) (planner.Mode, error) {
	kind, err := planner.ParseModeKind(args.mode)
	if err != nil {
		return planner.Mode{}, err
	}

	switch kind {
	case planner.ModeBackfill:
		if args.season != 0 {
			if args.from != "" || args.to != "" {
				return planner.Mode{}, errors.New("-season and -from/-to are mutually exclusive")
			}
			return planner.Backfill(planner.SeasonRange(args.season)), nil
		}
		if args.from == "" || args.to == "" {
			return planner.Mode{}, errors.New("backfill mode requires -from and -to (or -season)")
		}
		start, err := time.Parse(models.DayFormat, args.from)
		if err != nil {
			return planner.Mode{}, fmt.Errorf("invalid -from: %w", err)
		}
		end, err := time.Parse(models.DayFormat, args.to)
		if err != nil {
			return planner.Mode{}, fmt.Errorf("invalid -to: %w", err)
		}
		dr, err := models.NewDateRange(start, end)
		if err != nil {
			return planner.Mode{}, err
		}
		return planner.Backfill(dr), nil

	case planner.ModeIncremental:
		lookback := args.lookback
		if lookback == 0 {
			lookback = cfg.Sync.LookbackDays
		}
		return planner.Incremental(lookback), nil

	case planner.ModeSingleDate:
		if args.date == "" {
			return planner.Mode{}, errors.New("single-date mode requires -date")
		}
		day, err := time.Parse(models.DayFormat, args.date)
		if err != nil {
			return planner.Mode{}, fmt.Errorf("invalid -date: %w", err)
		}
		return planner.SingleDate(day), nil

	default:
		return planner.SinceLast(), nil
	}
}
