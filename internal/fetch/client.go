// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

/* client.go - Rate-Limited Upstream Fetch Client
 *
 * Retrieves raw records for one (entity, day) from the upstream API,
 * following cursor pagination until the day is exhausted. All requests
 * across all workers pass through one shared token bucket so concurrency
 * never multiplies the configured request rate.
 *
 * Failure handling per request:
 *   - network errors, HTTP 429 and 5xx: retried with exponential backoff
 *     (Retry-After honored when the upstream sends it)
 *   - HTTP 401: credential refreshed exactly once per FetchDay call; a
 *     second rejection is terminal
 *   - any other non-200: terminal immediately
 *
 * A day is fetched wholesale or not at all: a mid-pagination failure
 * discards pages already received and fails the day-unit.
 */

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/dugout/internal/logging"
	"github.com/tomtom215/dugout/internal/metrics"
	"github.com/tomtom215/dugout/internal/models"
)

// Fetcher retrieves all raw records the upstream holds for one entity on
// one calendar day.
type Fetcher interface {
	FetchDay(ctx context.Context, entity models.EntityType, day time.Time) ([]models.RawRecord, error)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the upstream API root, e.g. "https://api.example.com".
	BaseURL string

	// RequestsPerSecond and Burst size the shared token bucket.
	RequestsPerSecond float64
	Burst             int

	// Timeout caps a single HTTP request.
	Timeout time.Duration

	// Retry is the transient-failure backoff policy.
	Retry Backoff
}

// Client is the production Fetcher. Safe for concurrent use; the embedded
// limiter is the single shared token bucket for the process.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	creds      CredentialProvider
	retry      Backoff
}

// NewClient creates a rate-limited fetch client.
func NewClient(opts Options, creds CredentialProvider) *Client {
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		creds:      creds,
		retry:      opts.Retry,
	}
}

// pageResponse is one page of the upstream's paginated day listing. An
// empty NextCursor marks the final page.
type pageResponse struct {
	Records    []models.RawRecord `json:"records"`
	NextCursor string             `json:"nextCursor"`
}

// FetchDay retrieves every record for the entity on the given day,
// following cursors until exhausted. Errors wrap ErrTransient or
// ErrCredential where the cause is classifiable.
func (c *Client) FetchDay(ctx context.Context, entity models.EntityType, day time.Time) ([]models.RawRecord, error) {
	call := &callState{}
	var (
		records []models.RawRecord
		cursor  string
	)

	for {
		page, err := c.fetchPage(ctx, call, entity, day, cursor)
		if err != nil {
			return nil, &Error{Entity: entity, Day: day, Attempts: call.attempts, Err: err}
		}
		records = append(records, page.Records...)
		if page.NextCursor == "" {
			return records, nil
		}
		cursor = page.NextCursor
	}
}

// callState tracks per-FetchDay retry accounting: the one-refresh credential
// budget spans all pages of the call, and Attempts in a terminal Error
// reports total requests issued.
type callState struct {
	attempts  int
	refreshed bool
}

// fetchPage issues one logical page request, retrying transient failures
// per the backoff policy.
func (c *Client) fetchPage(ctx context.Context, call *callState, entity models.EntityType, day time.Time, cursor string) (*pageResponse, error) {
	cred, err := c.creds.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: obtaining credential: %v", ErrCredential, err)
	}

	var (
		lastErr error
		retries int
	)
	for {
		call.attempts++

		page, retryAfter, reqErr := c.doRequest(ctx, cred, entity, day, cursor)
		if reqErr == nil {
			metrics.FetchRequestsTotal.WithLabelValues(string(entity), "success").Inc()
			return page, nil
		}

		switch {
		case errors.Is(reqErr, ErrCredential):
			if call.refreshed {
				metrics.FetchRequestsTotal.WithLabelValues(string(entity), "failure").Inc()
				return nil, fmt.Errorf("%w: rejected again after refresh", ErrCredential)
			}
			call.refreshed = true
			metrics.FetchRetriesTotal.WithLabelValues(string(entity), "credential").Inc()
			logging.Warn().
				Str("entity", string(entity)).
				Str("day", day.Format(models.DayFormat)).
				Msg("Upstream rejected credential, refreshing once")
			cred, err = c.creds.Refresh(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: refresh failed: %v", ErrCredential, err)
			}
			continue

		case errors.Is(reqErr, ErrTransient):
			lastErr = reqErr
			if retries >= c.retry.Attempts {
				metrics.FetchRequestsTotal.WithLabelValues(string(entity), "failure").Inc()
				return nil, fmt.Errorf("retry budget exhausted: %w", lastErr)
			}
			metrics.FetchRequestsTotal.WithLabelValues(string(entity), "retry").Inc()
			metrics.FetchRetriesTotal.WithLabelValues(string(entity), retryReason(reqErr)).Inc()
			logging.Warn().
				Str("entity", string(entity)).
				Str("day", day.Format(models.DayFormat)).
				Int("retry", retries+1).
				Dur("delay", backoffDelay(c.retry, retries, retryAfter)).
				Err(reqErr).
				Msg("Transient upstream failure, backing off")
			if err := c.retry.Sleep(ctx, retries, retryAfter); err != nil {
				return nil, err
			}
			retries++
			continue

		default:
			metrics.FetchRequestsTotal.WithLabelValues(string(entity), "failure").Inc()
			return nil, reqErr
		}
	}
}

// doRequest performs a single HTTP request. The returned duration is the
// Retry-After hint for 429 responses, zero otherwise.
func (c *Client) doRequest(ctx context.Context, cred Credential, entity models.EntityType, day time.Time, cursor string) (*pageResponse, time.Duration, error) {
	if err := c.waitForToken(ctx); err != nil {
		return nil, 0, err
	}

	reqURL := fmt.Sprintf("%s/v1/%s?%s", c.baseURL, entity, dayQuery(day, cursor))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.FetchRequestDuration.WithLabelValues(string(entity)).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var page pageResponse
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, 0, fmt.Errorf("decode response: %w", err)
		}
		return &page, 0, nil

	case resp.StatusCode == http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, 0, ErrCredential

	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("%w: HTTP 429", ErrTransient)

	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, 0, fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// waitForToken blocks on the shared bucket, recording the wait.
func (c *Client) waitForToken(ctx context.Context) error {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	metrics.RateLimiterWaitDuration.Observe(time.Since(start).Seconds())
	return nil
}

func dayQuery(day time.Time, cursor string) string {
	q := url.Values{}
	q.Set("date", day.Format(models.DayFormat))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return q.Encode()
}

// parseRetryAfter handles the delta-seconds form of Retry-After. The HTTP
// date form is rare enough upstream that it falls back to the normal
// backoff schedule.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func retryReason(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "HTTP 429"):
		return "rate_limit"
	case strings.Contains(msg, "HTTP 5"):
		return "server_error"
	default:
		return "timeout"
	}
}

// backoffDelay resolves the effective delay for logging.
func backoffDelay(b Backoff, attempt int, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return b.Delay(attempt)
}
