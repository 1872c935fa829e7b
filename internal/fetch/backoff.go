// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package fetch

import (
	"context"
	"time"
)

// Backoff is the shared retry policy for transient upstream failures:
// exponential delay from Base, doubling per attempt, capped at Max, for at
// most Attempts retries. The remote store reuses this policy for batch
// submissions.
type Backoff struct {
	Base     time.Duration
	Max      time.Duration
	Attempts int
}

// Delay returns the backoff delay for a zero-based attempt number.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Guard the shift against overflow for large attempt numbers.
	if attempt > 30 {
		return b.Max
	}
	d := b.Base * (1 << attempt)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Sleep waits for the attempt's delay or until the context is canceled.
func (b Backoff) Sleep(ctx context.Context, attempt int, override time.Duration) error {
	delay := b.Delay(attempt)
	if override > 0 {
		delay = override
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
