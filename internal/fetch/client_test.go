// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/dugout/internal/models"
)

func testDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DayFormat, s)
	if err != nil {
		t.Fatalf("parse day %q: %v", s, err)
	}
	return d
}

func newTestClient(baseURL string, creds CredentialProvider) *Client {
	return NewClient(Options{
		BaseURL:           baseURL,
		RequestsPerSecond: 1000,
		Burst:             10,
		Timeout:           5 * time.Second,
		Retry: Backoff{
			Base:     time.Millisecond,
			Max:      5 * time.Millisecond,
			Attempts: 2,
		},
	}, creds)
}

func TestFetchDaySinglePage(t *testing.T) {
	var gotAuth, gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotDate = r.URL.Query().Get("date")
		fmt.Fprint(w, `{"records":[{"moveId":"m1"},{"moveId":"m2"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, NewStaticProvider("tok-123"))
	records, err := c.FetchDay(context.Background(), models.EntityRosterMoves, testDay(t, "2026-04-10"))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotDate != "2026-04-10" {
		t.Errorf("date query = %q, want 2026-04-10", gotDate)
	}
}

func TestFetchDayFollowsCursors(t *testing.T) {
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			fmt.Fprint(w, `{"records":[{"playerId":"p1"}],"nextCursor":"page2"}`)
		case "page2":
			fmt.Fprint(w, `{"records":[{"playerId":"p2"}],"nextCursor":"page3"}`)
		case "page3":
			fmt.Fprint(w, `{"records":[{"playerId":"p3"}],"nextCursor":""}`)
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, NewStaticProvider("tok"))
	records, err := c.FetchDay(context.Background(), models.EntityPlayerStats, testDay(t, "2026-06-01"))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("got %d records across pages, want 3", len(records))
	}
	if len(cursors) != 3 || cursors[1] != "page2" || cursors[2] != "page3" {
		t.Errorf("cursor sequence = %v", cursors)
	}
}

func TestFetchDayRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"records":[{"moveId":"m1"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, NewStaticProvider("tok"))
	records, err := c.FetchDay(context.Background(), models.EntityRosterMoves, testDay(t, "2026-05-02"))
	if err != nil {
		t.Fatalf("FetchDay after transient failures: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3 (2 failures + 1 success)", got)
	}
}

func TestFetchDayRetriesRateLimitWithRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"records":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, NewStaticProvider("tok"))
	start := time.Now()
	_, err := c.FetchDay(context.Background(), models.EntityLineups, testDay(t, "2026-05-03"))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("retried after %v, expected Retry-After of 1s to be honored", elapsed)
	}
}

func TestFetchDayExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, NewStaticProvider("tok"))
	_, err := c.FetchDay(context.Background(), models.EntityLineups, testDay(t, "2026-05-04"))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient after exhausted retries, got %v", err)
	}
	// 1 initial attempt + 2 retries
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fetch.Error, got %T", err)
	}
	if fe.Attempts != 3 {
		t.Errorf("Error.Attempts = %d, want 3", fe.Attempts)
	}
	if fe.Entity != models.EntityLineups {
		t.Errorf("Error.Entity = %q", fe.Entity)
	}
}

// refreshTrackingProvider rotates to a fresh token on Refresh and counts
// refresh calls.
type refreshTrackingProvider struct {
	tokens    []string
	idx       atomic.Int32
	refreshes atomic.Int32
}

func (p *refreshTrackingProvider) Credential(_ context.Context) (Credential, error) {
	return Credential{Token: p.tokens[p.idx.Load()]}, nil
}

func (p *refreshTrackingProvider) Refresh(_ context.Context) (Credential, error) {
	p.refreshes.Add(1)
	if int(p.idx.Load()) < len(p.tokens)-1 {
		p.idx.Add(1)
	}
	return Credential{Token: p.tokens[p.idx.Load()]}, nil
}

func TestFetchDayRefreshesCredentialOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"records":[{"moveId":"m1"}]}`)
	}))
	defer srv.Close()

	provider := &refreshTrackingProvider{tokens: []string{"stale", "fresh"}}
	c := newTestClient(srv.URL, provider)

	records, err := c.FetchDay(context.Background(), models.EntityRosterMoves, testDay(t, "2026-05-05"))
	if err != nil {
		t.Fatalf("FetchDay after credential refresh: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
	if got := provider.refreshes.Load(); got != 1 {
		t.Errorf("provider refreshed %d times, want 1", got)
	}
}

func TestFetchDaySecondCredentialRejectionIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := &refreshTrackingProvider{tokens: []string{"bad", "still-bad"}}
	c := newTestClient(srv.URL, provider)

	_, err := c.FetchDay(context.Background(), models.EntityLineups, testDay(t, "2026-05-06"))
	if !errors.Is(err, ErrCredential) {
		t.Fatalf("expected ErrCredential, got %v", err)
	}
	if got := provider.refreshes.Load(); got != 1 {
		t.Errorf("provider refreshed %d times, want exactly 1", got)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2 (original + one post-refresh retry)", got)
	}
}

func TestFetchDayTerminalOnUnexpectedStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such entity", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, NewStaticProvider("tok"))
	_, err := c.FetchDay(context.Background(), models.EntityLineups, testDay(t, "2026-05-07"))
	if err == nil {
		t.Fatal("expected terminal error for 404")
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrCredential) {
		t.Errorf("404 should be terminal and unclassified, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1 (no retry)", got)
	}
}

func TestFetchDayCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL, NewStaticProvider("tok"))
	_, err := c.FetchDay(ctx, models.EntityLineups, testDay(t, "2026-05-08"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"not-a-number", 0},
		{"Wed, 21 Oct 2026 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: 500 * time.Millisecond, Attempts: 5}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond},
		{10, 500 * time.Millisecond},
		{64, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
