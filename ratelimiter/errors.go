package ratelimiter

import (
	"context"
	"errors"
	"fmt"
)

// ErrorExceeded is returned by middleware paths when a client exceeds its
// rate limit.
//
// Users can use errors.Is(err, ratelimiter.ErrorExceeded) to detect this
// specific condition. It is a normal decision outcome, not a system fault.
var ErrorExceeded = errors.New("rate limit exceeded")

// StoreErrorKind classifies store failures for logging and metrics.
type StoreErrorKind string

const (
	// StoreErrorConnection covers transport and connect failures.
	StoreErrorConnection StoreErrorKind = "connection"
	// StoreErrorOperation covers a failed atomic operation on a live
	// connection, such as a script execution error.
	StoreErrorOperation StoreErrorKind = "operation"
	// StoreErrorTimeout covers round trips that exceeded the bounded timeout.
	StoreErrorTimeout StoreErrorKind = "timeout"
)

// StoreError wraps a failure of the shared counter store. Policies convert
// these into degraded (fail-open) admissions rather than surfacing them to
// callers.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError classifies err and wraps it with the operation name.
// Context deadline errors map to the timeout kind so per-decision timeouts
// are handled identically to any other store failure.
func NewStoreError(op string, err error) *StoreError {
	kind := StoreErrorOperation
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = StoreErrorTimeout
	case errors.Is(err, context.Canceled):
		kind = StoreErrorConnection
	}
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// ConfigError reports invalid policy parameters. It is the only error class
// that surfaces at construction time: it indicates a programming error, not a
// runtime condition, and must fail fast.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ratelimiter config: %s %s", e.Field, e.Reason)
}
