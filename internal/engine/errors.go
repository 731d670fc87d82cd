package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned for operations on a cancelled session.
	ErrCancelled = errors.New("session cancelled")

	// ErrStreamActive is returned when a send overlaps an in-flight stream.
	ErrStreamActive = errors.New("a stream attempt is already active")

	// ErrReconciliationInconsistency marks the server transcript coming
	// back shorter than the local one. Non-fatal: the engine keeps the
	// local view and continues.
	ErrReconciliationInconsistency = errors.New("server transcript shorter than local")
)

// decodeAbortError marks an attempt aborted after too many malformed events.
type decodeAbortError struct {
	count int
	last  error
}

func (e *decodeAbortError) Error() string {
	return fmt.Sprintf("aborted after %d malformed events: %v", e.count, e.last)
}

func (e *decodeAbortError) Unwrap() error { return e.last }

// readTimeoutError marks an attempt torn down by the per-event read guard.
type readTimeoutError struct {
	timeout string
}

func (e *readTimeoutError) Error() string {
	return "no event within " + e.timeout
}
