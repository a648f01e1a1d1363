package onboard

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("onboard: no store configured")
	ErrStoreClosed = errors.New("onboard: store closed")

	// Not found errors.
	ErrStepNotFound = errors.New("onboard: step not found")
	ErrNoSession    = errors.New("onboard: no session in progress")

	// State errors.
	ErrBusy           = errors.New("onboard: operation already in flight")
	ErrCompleted      = errors.New("onboard: flow already completed")
	ErrNotComplete    = errors.New("onboard: flow has remaining steps")
	ErrAwaitingCommit = errors.New("onboard: all steps done, awaiting commit")
	ErrCancelled      = errors.New("onboard: result discarded after navigation")
	ErrIllegalJump    = errors.New("onboard: jump target not reachable")

	// Registry errors.
	ErrEmptyRegistry    = errors.New("onboard: registry has no steps")
	ErrOrdinalGap       = errors.New("onboard: step ordinals not contiguous from 1")
	ErrDuplicateStepKey = errors.New("onboard: duplicate step key")
)

// ValidationError reports a field-level rule failure. It is recoverable:
// the flow stays on the current step and the presentation layer shows the
// message inline.
type ValidationError struct {
	Step    string
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("onboard: step %q field %q: %s", e.Step, e.Field, e.Message)
}

// NavigationError reports a rejected jump or transition. No state changes.
type NavigationError struct {
	From   int
	To     int
	Reason string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("onboard: cannot move from step %d to %d: %s", e.From, e.To, e.Reason)
}

func (e *NavigationError) Unwrap() error { return ErrIllegalJump }

// AvailabilityError reports that a remote uniqueness lookup failed or
// timed out. The gate degrades to "assume available" and surfaces this
// as a warning, never a block.
type AvailabilityError struct {
	Field string
	Err   error
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("onboard: availability check for %q: %v", e.Field, e.Err)
}

func (e *AvailabilityError) Unwrap() error { return e.Err }

// PersistenceError reports a failed store operation. The progress layer
// degrades to in-memory operation, so callers see this only as a warning.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("onboard: persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CommitError reports that the identity backend rejected the final
// profile. The flow stays at the commit-pending point so the commit can
// be retried without re-collecting answers.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("onboard: profile commit: %v", e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
