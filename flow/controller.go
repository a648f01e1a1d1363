package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/onboard"
	"github.com/xraph/onboard/backoff"
	"github.com/xraph/onboard/hook"
	"github.com/xraph/onboard/id"
	"github.com/xraph/onboard/progress"
	"github.com/xraph/onboard/rule"
	"github.com/xraph/onboard/step"
)

// Option configures a Controller.
type Option func(*Controller) error

// WithLogger sets the structured logger for the controller.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) error {
		c.logger = l
		return nil
	}
}

// WithPermissions sets the platform permission source. Skip predicates
// query it live on every resolution, so permission state is always read
// fresh and never persisted.
func WithPermissions(src onboard.PermissionSource) Option {
	return func(c *Controller) error {
		c.perms = onboard.Live(src)
		return nil
	}
}

// WithHooks sets a pre-built hook registry.
func WithHooks(r *hook.Registry) Option {
	return func(c *Controller) error {
		c.hooks = r
		return nil
	}
}

// WithHook registers a single lifecycle hook. May be repeated.
func WithHook(h hook.Hook) Option {
	return func(c *Controller) error {
		c.pendingHooks = append(c.pendingHooks, h)
		return nil
	}
}

// WithClock overrides the controller's time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) error {
		c.now = now
		return nil
	}
}

// WithCommitBackoff makes Complete retry a rejected profile commit up
// to attempts times, waiting per the strategy between tries. Other
// controller calls see ErrBusy for the whole retry window. Without this
// option Complete makes a single attempt; CommitWithRetry offers the
// same loop with caller-controlled pacing.
func WithCommitBackoff(strategy backoff.Strategy, attempts int) Option {
	return func(c *Controller) error {
		if attempts < 1 {
			return fmt.Errorf("flow: commit attempts must be at least 1, got %d", attempts)
		}
		c.commitBackoff = strategy
		c.commitAttempts = attempts
		return nil
	}
}

// Controller is the onboarding state machine. It owns the session's
// mutable state exclusively and serializes every mutation: concurrent
// mutating calls while an operation is suspended on its availability
// check are rejected with ErrBusy, and navigating away cancels the
// outstanding check so its result is never applied to a stale step.
//
// States are Step(1)..Step(N) plus the commit-pending point N+1 and the
// terminal Completed state.
type Controller struct {
	reg          *step.Registry
	gate         *rule.Gate
	resolver     *Resolver
	store        *progress.Store
	identity     onboard.IdentityClient
	perms        onboard.PermissionReader
	hooks        *hook.Registry
	pendingHooks []hook.Hook
	logger       *slog.Logger
	now          func() time.Time

	commitBackoff  backoff.Strategy
	commitAttempts int

	mu          sync.Mutex
	degraded    bool
	state       progress.State
	answers     onboard.Answers
	finished    bool
	validating  bool
	committing  bool
	gen         uint64
	cancelCheck context.CancelFunc
	enteredAt   time.Time
	startedAt   time.Time
	lastErr     error
	warnings    []error
}

// New composes a controller from its collaborators and restores any
// persisted progress for the store's session. A fresh session starts at
// step 1 with an empty completed set and is persisted immediately.
func New(ctx context.Context, reg *step.Registry, gate *rule.Gate, store *progress.Store, identity onboard.IdentityClient, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, onboard.ErrNoStore
	}
	c := &Controller{
		reg:      reg,
		gate:     gate,
		resolver: NewResolver(reg),
		store:    store,
		identity: identity,
		perms:    onboard.Live(nil),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.hooks == nil {
		c.hooks = hook.NewRegistry(c.logger)
	}
	for _, h := range c.pendingHooks {
		c.hooks.Register(h)
	}
	c.pendingHooks = nil

	st, answers, ok, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("flow: restore session: %w", err)
	}
	switch {
	case ok && st.Current >= 1 && st.Current <= reg.Total()+1:
		c.state = st
		c.answers = answers
	case ok:
		// Persisted position does not fit this registry (the flow
		// definition changed between releases). Restart rather than
		// strand the user on a step that no longer exists.
		c.logger.Warn("restored progress out of range, restarting flow",
			slog.String("session", store.Session().String()),
			slog.Int("current", st.Current),
			slog.Int("total", reg.Total()),
		)
		c.state = progress.NewState()
		c.answers = make(onboard.Answers)
	default:
		c.state = progress.NewState()
		c.answers = make(onboard.Answers)
	}

	now := c.now()
	c.startedAt = now
	c.enteredAt = now
	if !ok {
		c.persistLocked(ctx)
	}
	if c.state.Current <= reg.Total() {
		if s, err := reg.Get(c.state.Current); err == nil {
			c.hooks.EmitStepEntered(ctx, c.session(), s.Key)
		}
	}
	return c, nil
}

func (c *Controller) session() id.SessionID { return c.store.Session() }

// Session returns the controller's session ID.
func (c *Controller) Session() id.SessionID { return c.session() }

// Answers returns a copy of the collected answers.
func (c *Controller) Answers() onboard.Answers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers.Clone()
}

// View returns the current presentation snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Advance merges stepAnswers into the collected answers, validates the
// current step, and on success marks it completed and moves to the next
// visible step (or the commit-pending point). On validation failure the
// position is unchanged and the typed error is returned for inline
// display. A second Advance while one is suspended on its availability
// check returns ErrBusy.
func (c *Controller) Advance(ctx context.Context, stepAnswers onboard.Answers) (View, error) {
	c.mu.Lock()
	if c.finished {
		defer c.mu.Unlock()
		return c.viewLocked(), onboard.ErrCompleted
	}
	if c.validating || c.committing {
		defer c.mu.Unlock()
		return c.viewLocked(), onboard.ErrBusy
	}
	if c.state.Current > c.reg.Total() {
		defer c.mu.Unlock()
		return c.viewLocked(), onboard.ErrAwaitingCommit
	}
	cur, err := c.reg.Get(c.state.Current)
	if err != nil {
		defer c.mu.Unlock()
		return c.viewLocked(), err
	}
	c.answers.Merge(stepAnswers)

	// Validation may suspend on a remote availability check, so it runs
	// outside the lock on a cancellable context. Navigation cancels it;
	// the generation counter discards a result that arrives late.
	checkCtx, cancel := context.WithCancel(ctx)
	c.validating = true
	c.cancelCheck = cancel
	gen := c.gen
	answersCopy := c.answers.Clone()
	c.mu.Unlock()

	res := c.gate.Validate(checkCtx, cur.Key, answersCopy)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.validating = false
	c.cancelCheck = nil

	if res.Cancelled || gen != c.gen {
		return c.viewLocked(), onboard.ErrCancelled
	}
	c.warnings = res.Warnings
	if !res.Valid {
		c.lastErr = res.Err
		c.hooks.EmitValidationFailed(ctx, c.session(), res.Err)
		return c.viewLocked(), res.Err
	}

	now := c.now()
	c.state.MarkCompleted(cur.Ordinal)
	c.hooks.EmitStepCompleted(ctx, c.session(), cur.Key, now.Sub(c.enteredAt))

	t, err := c.resolver.NextFrom(cur.Ordinal, c.answers, c.perms)
	if err != nil {
		c.lastErr = err
		return c.viewLocked(), err
	}
	for _, k := range t.Skipped {
		c.hooks.EmitStepSkipped(ctx, c.session(), k)
	}
	if t.Complete {
		c.state.Current = c.reg.Total() + 1
	} else {
		c.state.Current = t.Next.Ordinal
		c.hooks.EmitStepEntered(ctx, c.session(), t.Next.Key)
	}
	c.enteredAt = now
	c.gen++
	c.lastErr = nil
	c.persistLocked(ctx)
	return c.viewLocked(), nil
}

// Retreat moves to the previous visible step, leaving the completed set
// and answers untouched. On the first visible step it is a no-op. An
// outstanding availability check is cancelled: the user navigated away,
// so its result must not be applied.
func (c *Controller) Retreat(ctx context.Context) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return c.viewLocked(), onboard.ErrCompleted
	}
	if c.committing {
		return c.viewLocked(), onboard.ErrBusy
	}
	c.discardOutstandingCheck()

	prev, ok, err := c.resolver.PrevFrom(c.state.Current, c.answers, c.perms)
	if err != nil {
		return c.viewLocked(), err
	}
	if !ok {
		return c.viewLocked(), nil
	}

	c.state.Current = prev.Ordinal
	c.enteredAt = c.now()
	c.gen++
	c.lastErr = nil
	c.hooks.EmitStepEntered(ctx, c.session(), prev.Key)
	c.persistLocked(ctx)
	return c.viewLocked(), nil
}

// JumpTo moves directly to ordinal. Allowed moves: revisiting an
// earlier step, or advancing exactly one step past a current step that
// already passed validation. Jumping to the current ordinal is an exact
// no-op: no persistence write, no mutation. Anything else is rejected
// with a NavigationError and no state change.
func (c *Controller) JumpTo(ctx context.Context, ordinal int) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return c.viewLocked(), onboard.ErrCompleted
	}
	if c.committing {
		return c.viewLocked(), onboard.ErrBusy
	}
	if ordinal == c.state.Current {
		return c.viewLocked(), nil
	}
	c.discardOutstandingCheck()

	switch {
	case ordinal >= 1 && ordinal < c.state.Current:
		// Revisit.
	case ordinal == c.state.Current+1 && ordinal <= c.reg.Total()+1 && c.state.IsCompleted(c.state.Current):
		// Single-step advance over an already-validated step.
	default:
		nav := &onboard.NavigationError{
			From:   c.state.Current,
			To:     ordinal,
			Reason: "only revisits or a single completed-step advance are allowed",
		}
		c.lastErr = nav
		return c.viewLocked(), nav
	}

	c.state.Current = ordinal
	c.enteredAt = c.now()
	c.gen++
	c.lastErr = nil
	if ordinal <= c.reg.Total() {
		if s, err := c.reg.Get(ordinal); err == nil {
			c.hooks.EmitStepEntered(ctx, c.session(), s.Key)
		}
	}
	c.persistLocked(ctx)
	return c.viewLocked(), nil
}

// Complete hands the collected answers to the identity backend. It is
// callable only at the commit-pending point. The progress store is
// cleared only after the backend accepts the profile, so a failed
// commit can be retried without re-collecting answers. On success the
// flow moves to the terminal Completed state.
func (c *Controller) Complete(ctx context.Context) (onboard.ProfileID, View, error) {
	c.mu.Lock()
	if c.finished {
		defer c.mu.Unlock()
		return id.Nil, c.viewLocked(), onboard.ErrCompleted
	}
	if c.validating || c.committing {
		defer c.mu.Unlock()
		return id.Nil, c.viewLocked(), onboard.ErrBusy
	}
	if c.state.Current <= c.reg.Total() {
		defer c.mu.Unlock()
		return id.Nil, c.viewLocked(), onboard.ErrNotComplete
	}
	c.committing = true
	answers := c.answers.Clone()
	attempts := c.commitAttempts
	if attempts < 1 {
		attempts = 1
	}
	strategy := c.commitBackoff
	c.mu.Unlock()

	var (
		profileID onboard.ProfileID
		err       error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		profileID, err = c.identity.CommitProfile(ctx, answers)
		if err == nil || attempt == attempts {
			break
		}
		var delay time.Duration
		if strategy != nil {
			delay = strategy.Delay(attempt)
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(delay):
			continue
		}
		break
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.committing = false
	if err != nil {
		cerr := &onboard.CommitError{Err: err}
		c.lastErr = cerr
		c.hooks.EmitCommitFailed(ctx, c.session(), err)
		return id.Nil, c.viewLocked(), cerr
	}

	// Commit-before-clear: progress is destroyed only after the
	// identity backend has durably accepted the profile.
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		c.logger.Warn("clear progress after commit",
			slog.String("session", c.session().String()),
			slog.Any("error", clearErr),
		)
	}
	c.finished = true
	c.lastErr = nil
	c.warnings = nil
	c.hooks.EmitFlowCompleted(ctx, c.session(), profileID, c.now().Sub(c.startedAt))
	return profileID, c.viewLocked(), nil
}

// discardOutstandingCheck cancels an in-flight availability check and
// bumps the generation so its result is dropped. Caller holds mu.
func (c *Controller) discardOutstandingCheck() {
	if c.validating && c.cancelCheck != nil {
		c.cancelCheck()
		c.gen++
	}
}

// persistLocked saves the session snapshot. The progress store absorbs
// backend failures, so persistence never blocks a transition; the
// degradation hook fires once per transition into memory-only mode.
// Caller holds mu.
func (c *Controller) persistLocked(ctx context.Context) {
	if err := c.store.Save(ctx, c.state.Clone(), c.answers); err != nil {
		c.logger.Error("persist progress",
			slog.String("session", c.session().String()),
			slog.Any("error", err),
		)
	}
	if deg := c.store.Degraded(); deg != c.degraded {
		c.degraded = deg
		if deg {
			c.hooks.EmitProgressDegraded(ctx, c.session())
		}
	}
}

// viewLocked builds the presentation snapshot. Caller holds mu.
func (c *Controller) viewLocked() View {
	v := View{
		Session:    c.session(),
		Ordinal:    c.state.Current,
		TotalSteps: c.reg.Total(),
		Completed:  c.finished,
		LastError:  c.lastErr,
		Warnings:   c.warnings,
	}
	if c.finished {
		return v
	}
	if c.state.Current > c.reg.Total() {
		v.CommitPending = true
		v.IsLastStep = true
		return v
	}
	s, err := c.reg.Get(c.state.Current)
	if err != nil {
		return v
	}
	v.StepKey = s.Key
	if _, ok, prevErr := c.resolver.PrevFrom(s.Ordinal, c.answers, c.perms); prevErr == nil && !ok {
		v.IsFirstStep = true
	}
	if t, nextErr := c.resolver.NextFrom(s.Ordinal, c.answers, c.perms); nextErr == nil && t.Complete {
		v.IsLastStep = true
	}
	return v
}
