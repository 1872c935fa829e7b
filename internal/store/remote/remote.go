// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

/* remote.go - Remote Batched-Statement Store
 *
 * Persistence target backed by a remote SQL-over-HTTP service: the client
 * POSTs parameterized statements to /v1/batch and the service executes
 * them in order within one request. The service bounds both the statement
 * count and the encoded request size, so writes are chunked client-side
 * and an oversized rejection is retried once after splitting the chunk in
 * half.
 *
 * Transient failures (429, 5xx, network) retry with the fetch package's
 * backoff policy. Batches are never reordered relative to the run write:
 * BeginRun is a single-statement call confirmed before ApplyBatch will
 * accept the run ID.
 */

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dugout/internal/config"
	"github.com/tomtom215/dugout/internal/fetch"
	"github.com/tomtom215/dugout/internal/logging"
	"github.com/tomtom215/dugout/internal/metrics"
)

// statement is one parameterized SQL statement for the batch endpoint.
type statement struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// batchRequest is the /v1/batch request body.
type batchRequest struct {
	Statements []statement `json:"statements"`
}

// statementResult is the service's per-statement reply.
type statementResult struct {
	Success      bool             `json:"success"`
	RowsAffected int              `json:"rowsAffected"`
	Rows         []map[string]any `json:"rows,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// batchResponse is the /v1/batch response body.
type batchResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Results []statementResult `json:"results"`
}

// Store is the remote batched-statement persistence target.
type Store struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client

	maxStatements int
	maxBytes      int
	retry         fetch.Backoff

	confirmed sync.Map
}

// New creates a remote store client. The service schema is provisioned out
// of band; New performs no I/O.
func New(cfg *config.RemoteConfig) *Store {
	return &Store{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		apiToken:      cfg.APIToken,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		maxStatements: cfg.MaxBatchStatement,
		maxBytes:      cfg.MaxBatchBytes,
		retry: fetch.Backoff{
			Base:     cfg.RetryBaseDelay,
			Max:      cfg.RetryMaxDelay,
			Attempts: cfg.RetryAttempts,
		},
	}
}

// Name identifies this target in logs and metrics.
func (s *Store) Name() string {
	return "remote"
}

// Close releases idle connections. The remote service holds no per-client
// state.
func (s *Store) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// errOversized marks a structural size rejection by the service, eligible
// for the one split-and-retry.
var errOversized = errors.New("batch exceeds service limits")

// submit executes one batch call, retrying transient failures with
// backoff. Oversized rejections surface as errOversized for the caller's
// split logic.
func (s *Store) submit(ctx context.Context, stmts []statement) ([]statementResult, error) {
	body, err := json.Marshal(batchRequest{Statements: stmts})
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	if s.maxBytes > 0 && len(body) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes encoded", errOversized, len(body))
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		results, err := s.doBatch(ctx, body)
		if err == nil {
			return results, nil
		}
		if !errors.Is(err, fetch.ErrTransient) {
			return nil, err
		}
		lastErr = err
		if attempt >= s.retry.Attempts {
			return nil, fmt.Errorf("retry budget exhausted: %w", lastErr)
		}
		logging.Warn().
			Int("retry", attempt+1).
			Int("statements", len(stmts)).
			Err(err).
			Msg("Transient remote store failure, backing off")
		if err := s.retry.Sleep(ctx, attempt, 0); err != nil {
			return nil, err
		}
	}
}

// doBatch performs a single HTTP exchange with the batch endpoint.
func (s *Store) doBatch(ctx context.Context, body []byte) ([]statementResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create batch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", fetch.ErrTransient, err)
	}
	defer resp.Body.Close()
	metrics.BatchDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode below
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, fmt.Errorf("%w: HTTP 413", errOversized)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, fmt.Errorf("%w: HTTP %d", fetch.ErrTransient, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote store returned %d: %s", resp.StatusCode, string(msg))
	}

	var br batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}
	if !br.Success {
		if strings.Contains(strings.ToLower(br.Error), "too large") {
			return nil, fmt.Errorf("%w: %s", errOversized, br.Error)
		}
		return nil, fmt.Errorf("batch rejected: %s", br.Error)
	}
	for i, r := range br.Results {
		if !r.Success {
			return nil, fmt.Errorf("statement %d failed: %s", i, r.Error)
		}
	}
	return br.Results, nil
}

// queryOne submits a single read statement and returns its rows.
func (s *Store) queryOne(ctx context.Context, stmt statement) ([]map[string]any, error) {
	results, err := s.submit(ctx, []statement{stmt})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("remote store returned %d results for 1 statement", len(results))
	}
	return results[0].Rows, nil
}
