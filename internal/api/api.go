// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

/* api.go - Operational HTTP Surface
 *
 * A small read-only API for operators: run history, run detail, health,
 * and Prometheus metrics. It is started only when an ops listen address
 * is configured; the ingestion path never depends on it.
 */

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/dugout/internal/ledger"
	"github.com/tomtom215/dugout/internal/logging"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500

	readTimeout     = 15 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Response is the envelope for every JSON response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error carries a machine-readable code alongside the message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server exposes the ops endpoints over one ledger.
type Server struct {
	runs       ledger.Ledger
	targetName string
}

// New creates an ops server reading run history from the given ledger.
func New(runs ledger.Ledger, targetName string) *Server {
	return &Server{runs: runs, targetName: targetName}
}

// Routes builds the router. Exposed separately from ListenAndServe so
// tests can drive it through httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRunByID)
	})

	return r
}

// ListenAndServe serves until ctx is canceled, then drains in-flight
// requests before returning.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("Ops API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]string{
			"status": "ok",
			"target": s.targetName,
		},
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		if parsed > maxRunsLimit {
			parsed = maxRunsLimit
		}
		limit = parsed
	}

	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "ledger_error", "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: runs})
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_run_id", "run id must be a UUID")
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	switch {
	case errors.Is(err, ledger.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run_not_found", "no run with that id")
	case err != nil:
		logging.Error().Err(err).Str("run_id", id.String()).Msg("Failed to load run")
		writeError(w, http.StatusInternalServerError, "ledger_error", "failed to load run")
	default:
		writeJSON(w, http.StatusOK, Response{Success: true, Data: run})
	}
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{
		Success: false,
		Error:   &Error{Code: code, Message: message},
	})
}
