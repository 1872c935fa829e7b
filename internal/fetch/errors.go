// Dugout - Job-Tracked Sports Data Ingestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dugout

package fetch

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/dugout/internal/models"
)

var (
	// ErrTransient marks failures worth retrying: network timeouts, HTTP 429,
	// and upstream 5xx responses. It only surfaces once the retry budget is
	// exhausted.
	ErrTransient = errors.New("transient upstream failure")

	// ErrCredential marks an expired or invalid credential that a single
	// refresh did not cure. It is terminal for the current call.
	ErrCredential = errors.New("credential rejected by upstream")
)

// Error is a terminal fetch failure for one (entity, day) call.
type Error struct {
	Entity   models.EntityType
	Day      time.Time
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s %s failed after %d attempt(s): %v",
		e.Entity, e.Day.Format(models.DayFormat), e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
