// Package hook defines the lifecycle hook system for onboard. Hooks are
// notified of flow events (step entered, completed, skipped, validation
// failed, flow completed, commit failed) and can react to them:
// logging, metrics, analytics.
//
// Each lifecycle event is a separate interface so hooks opt in only to
// the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/xraph/onboard"
	"github.com/xraph/onboard/id"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// StepEntered is called when the flow lands on a step, including the
// first step of a fresh or restored session.
type StepEntered interface {
	OnStepEntered(ctx context.Context, session id.SessionID, stepKey string) error
}

// StepCompleted is called after a step passes validation and the flow
// moves on. elapsed measures time spent on the step.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, session id.SessionID, stepKey string, elapsed time.Duration) error
}

// StepSkipped is called for each step the resolver bypasses during a
// forward transition.
type StepSkipped interface {
	OnStepSkipped(ctx context.Context, session id.SessionID, stepKey string) error
}

// ValidationFailed is called when a step's validation gate rejects an
// advance attempt.
type ValidationFailed interface {
	OnValidationFailed(ctx context.Context, session id.SessionID, verr *onboard.ValidationError) error
}

// FlowCompleted is called after the identity backend accepts the final
// profile and the session is cleared. elapsed measures the whole flow.
type FlowCompleted interface {
	OnFlowCompleted(ctx context.Context, session id.SessionID, profile onboard.ProfileID, elapsed time.Duration) error
}

// CommitFailed is called when the identity backend rejects the final
// profile. The flow stays retryable.
type CommitFailed interface {
	OnCommitFailed(ctx context.Context, session id.SessionID, err error) error
}

// ProgressDegraded is called when the progress store falls back to
// in-memory operation because its backend failed. Fired once per
// transition into the degraded state.
type ProgressDegraded interface {
	OnProgressDegraded(ctx context.Context, session id.SessionID) error
}
