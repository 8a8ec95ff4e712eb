// Package wpterrors provides the three structured error kinds the sync
// core distinguishes: retryable, abort, and programming-error (value).
package wpterrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for orchestrator handling.
type Kind int

const (
	// KindRetryable marks a transient failure the caller should retry
	// with backoff (tree closed, submission tool non-zero exit, network
	// hiccup).
	KindRetryable Kind = iota
	// KindAbort marks a structural precondition violation that should
	// surface directly, no retry.
	KindAbort
	// KindValue marks a programming error in state (invalid status,
	// undeclared transition, failed backfill). Not recovered.
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindAbort:
		return "abort"
	case KindValue:
		return "value"
	default:
		return "unknown"
	}
}

// SyncError is the structured error type for the sync core.
type SyncError struct {
	Kind  Kind
	What  string
	Cause error
}

func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.What, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.What)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Retryable wraps cause as a retryable error.
func Retryable(what string, cause error) error {
	return &SyncError{Kind: KindRetryable, What: what, Cause: cause}
}

// Abort wraps cause as a non-retryable structural abort.
func Abort(what string, cause error) error {
	return &SyncError{Kind: KindAbort, What: what, Cause: cause}
}

// Value wraps cause as a programming-error in state.
func Value(what string, cause error) error {
	return &SyncError{Kind: KindValue, What: what, Cause: cause}
}

// hasKind reports whether any *SyncError in err's chain has the given
// Kind. Unlike a single errors.As call, this keeps walking past a
// SyncError of the wrong Kind instead of stopping at the first one
// found — needed because one SyncError's Cause may itself be a
// differently-kinded SyncError (e.g. a retryable wrapping an abort to
// signal "closed or transiently unavailable").
func hasKind(err error, kind Kind) bool {
	for err != nil {
		var se *SyncError
		if errors.As(err, &se) {
			if se.Kind == kind {
				return true
			}
			err = se.Cause
			continue
		}
		return false
	}
	return false
}

// IsRetryable reports whether err (or any wrapped error) is a retryable SyncError.
func IsRetryable(err error) bool {
	return hasKind(err, KindRetryable)
}

// IsAbort reports whether err (or any wrapped error) is an abort SyncError.
func IsAbort(err error) bool {
	return hasKind(err, KindAbort)
}

// IsValue reports whether err (or any wrapped error) is a value SyncError.
func IsValue(err error) bool {
	return hasKind(err, KindValue)
}
