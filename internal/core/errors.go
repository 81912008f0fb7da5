// Package core defines the runner's shared domain types: identities, the
// message/route/schedule model, and the single-writer GlobalState they live
// in (§3).
package core

import "errors"

// Sentinel errors for the transient/protocol tiers of the error taxonomy.
// Lifecycle invariant violations use FatalError instead — see below.
var (
	// ErrWouldBlock signals "no more data right now" on a non-blocking
	// socket. Never logged as an error; callers just stop their batch.
	ErrWouldBlock = errors.New("runner: would block")

	ErrRouteNotFound      = errors.New("runner: no route for endpoint")
	ErrComponentNotFound  = errors.New("runner: component not found")
	ErrStateSyncNotFound  = errors.New("runner: state sync not found")
	ErrShortFrame         = errors.New("runner: frame shorter than header")
	ErrZeroLengthFrame    = errors.New("runner: zero-length frame")
	ErrOversizeStateFrame = errors.New("runner: state frame exceeds cap")
)

// FatalError marks a lifecycle invariant violation (§7): a caller-facing
// configuration bug, not a runtime condition. The control loop never
// recovers from one — it propagates out of Run and becomes the process's
// exit code.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return "runner: fatal: " + e.Op + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }

func NewFatalError(op string, err error) *FatalError {
	return &FatalError{Op: op, Err: err}
}
