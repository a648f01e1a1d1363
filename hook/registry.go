package hook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/onboard"
	"github.com/xraph/onboard/id"
)

// Named entry types pair a hook implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type stepEnteredEntry struct {
	name string
	hook StepEntered
}

type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type stepSkippedEntry struct {
	name string
	hook StepSkipped
}

type validationFailedEntry struct {
	name string
	hook ValidationFailed
}

type flowCompletedEntry struct {
	name string
	hook FlowCompleted
}

type commitFailedEntry struct {
	name string
	hook CommitFailed
}

type progressDegradedEntry struct {
	name string
	hook ProgressDegraded
}

// Registry holds registered hooks and fans lifecycle events out to
// them. Hook errors are logged, never propagated: a misbehaving hook
// must not stall the flow.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger

	stepEntered      []stepEnteredEntry
	stepCompleted    []stepCompletedEntry
	stepSkipped      []stepSkippedEntry
	validationFailed []validationFailedEntry
	flowCompleted    []flowCompletedEntry
	commitFailed     []commitFailedEntry
	progressDegraded []progressDegradedEntry
}

// NewRegistry creates an empty hook registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register inspects which lifecycle interfaces h implements and
// subscribes it to those events.
func (r *Registry) Register(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.Name()
	if v, ok := h.(StepEntered); ok {
		r.stepEntered = append(r.stepEntered, stepEnteredEntry{name, v})
	}
	if v, ok := h.(StepCompleted); ok {
		r.stepCompleted = append(r.stepCompleted, stepCompletedEntry{name, v})
	}
	if v, ok := h.(StepSkipped); ok {
		r.stepSkipped = append(r.stepSkipped, stepSkippedEntry{name, v})
	}
	if v, ok := h.(ValidationFailed); ok {
		r.validationFailed = append(r.validationFailed, validationFailedEntry{name, v})
	}
	if v, ok := h.(FlowCompleted); ok {
		r.flowCompleted = append(r.flowCompleted, flowCompletedEntry{name, v})
	}
	if v, ok := h.(CommitFailed); ok {
		r.commitFailed = append(r.commitFailed, commitFailedEntry{name, v})
	}
	if v, ok := h.(ProgressDegraded); ok {
		r.progressDegraded = append(r.progressDegraded, progressDegradedEntry{name, v})
	}
}

func (r *Registry) hookError(event, name string, err error) {
	r.logger.Error("hook error",
		slog.String("event", event),
		slog.String("hook", name),
		slog.Any("error", err),
	)
}

// EmitStepEntered notifies StepEntered hooks.
func (r *Registry) EmitStepEntered(ctx context.Context, session id.SessionID, stepKey string) {
	r.mu.RLock()
	entries := r.stepEntered
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnStepEntered(ctx, session, stepKey); err != nil {
			r.hookError("step_entered", e.name, err)
		}
	}
}

// EmitStepCompleted notifies StepCompleted hooks.
func (r *Registry) EmitStepCompleted(ctx context.Context, session id.SessionID, stepKey string, elapsed time.Duration) {
	r.mu.RLock()
	entries := r.stepCompleted
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnStepCompleted(ctx, session, stepKey, elapsed); err != nil {
			r.hookError("step_completed", e.name, err)
		}
	}
}

// EmitStepSkipped notifies StepSkipped hooks.
func (r *Registry) EmitStepSkipped(ctx context.Context, session id.SessionID, stepKey string) {
	r.mu.RLock()
	entries := r.stepSkipped
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnStepSkipped(ctx, session, stepKey); err != nil {
			r.hookError("step_skipped", e.name, err)
		}
	}
}

// EmitValidationFailed notifies ValidationFailed hooks.
func (r *Registry) EmitValidationFailed(ctx context.Context, session id.SessionID, verr *onboard.ValidationError) {
	r.mu.RLock()
	entries := r.validationFailed
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnValidationFailed(ctx, session, verr); err != nil {
			r.hookError("validation_failed", e.name, err)
		}
	}
}

// EmitFlowCompleted notifies FlowCompleted hooks.
func (r *Registry) EmitFlowCompleted(ctx context.Context, session id.SessionID, profile onboard.ProfileID, elapsed time.Duration) {
	r.mu.RLock()
	entries := r.flowCompleted
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnFlowCompleted(ctx, session, profile, elapsed); err != nil {
			r.hookError("flow_completed", e.name, err)
		}
	}
}

// EmitCommitFailed notifies CommitFailed hooks.
func (r *Registry) EmitCommitFailed(ctx context.Context, session id.SessionID, err error) {
	r.mu.RLock()
	entries := r.commitFailed
	r.mu.RUnlock()
	for _, e := range entries {
		if hookErr := e.hook.OnCommitFailed(ctx, session, err); hookErr != nil {
			r.hookError("commit_failed", e.name, hookErr)
		}
	}
}

// EmitProgressDegraded notifies ProgressDegraded hooks.
func (r *Registry) EmitProgressDegraded(ctx context.Context, session id.SessionID) {
	r.mu.RLock()
	entries := r.progressDegraded
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnProgressDegraded(ctx, session); err != nil {
			r.hookError("progress_degraded", e.name, err)
		}
	}
}
