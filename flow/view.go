package flow

import (
	"github.com/xraph/onboard/id"
)

// View is the presentation snapshot returned after every controller
// call. It carries everything a rendering layer needs to draw the
// current step; the controller never exposes its mutable state
// directly.
type View struct {
	// Session identifies the flow session.
	Session id.SessionID

	// StepKey is the current step's key. Empty when the flow is at the
	// commit-pending point or completed.
	StepKey string

	// Ordinal is the current position, 1..N, or N+1 at commit-pending.
	Ordinal int

	// IsFirstStep is true when no visible step precedes the current one.
	IsFirstStep bool

	// IsLastStep is true when no visible step follows the current one.
	IsLastStep bool

	// TotalSteps is the registry size N.
	TotalSteps int

	// CommitPending is true when every step is done and Complete may be
	// called.
	CommitPending bool

	// Completed is true once the profile has been committed; the flow
	// is terminal.
	Completed bool

	// LastError is the most recent operation's error, nil after a
	// successful operation. Validation errors land here for inline
	// display.
	LastError error

	// Warnings carries non-fatal degradations from the last operation
	// (availability lookups that timed out, persistence fallbacks).
	Warnings []error
}
