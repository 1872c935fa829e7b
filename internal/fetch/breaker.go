// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package fetch

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/dugout/internal/logging"
	"github.com/tomtom215/dugout/internal/metrics"
	"github.com/tomtom215/dugout/internal/models"
)

// BreakerFetcher wraps a Fetcher with the circuit breaker pattern so a
// down or degraded upstream fails fast instead of burning the retry budget
// of every queued day-unit.
//
// The breaker uses real time (via sony/gobreaker) for its interval and
// timeout calculations. Timing only affects recovery, not data integrity;
// unit tests exercise the wrapped fetcher directly.
type BreakerFetcher struct {
	inner Fetcher
	cb    *gobreaker.CircuitBreaker[[]models.RawRecord]
	name  string
}

// NewBreakerFetcher creates a circuit-breaking Fetcher. Configuration:
// - Max 3 requests allowed through in half-open state
// - 1 minute measurement window in closed state
// - 1 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 8 requests
func NewBreakerFetcher(inner Fetcher) *BreakerFetcher {
	cbName := "upstream-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[[]models.RawRecord](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 8 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit to upstream API")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},

		// Credential failures say nothing about upstream health; only
		// transport-level failures count toward tripping.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCredential)
		},
	})

	return &BreakerFetcher{inner: inner, cb: cb, name: cbName}
}

// FetchDay delegates to the wrapped fetcher with circuit breaker protection.
func (b *BreakerFetcher) FetchDay(ctx context.Context, entity models.EntityType, day time.Time) ([]models.RawRecord, error) {
	records, err := b.cb.Execute(func() ([]models.RawRecord, error) {
		return b.inner.FetchDay(ctx, entity, day)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().
				Str("entity", string(entity)).
				Str("day", day.Format(models.DayFormat)).
				Msg("[CIRCUIT BREAKER] Request rejected, upstream marked unavailable")
			return nil, &Error{Entity: entity, Day: day, Err: errors.Join(ErrTransient, err)}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return records, nil
}

// stateToFloat converts circuit breaker state to a numeric value for metrics.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to a string for logging.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
