package flow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/onboard"
	"github.com/xraph/onboard/backoff"
	"github.com/xraph/onboard/flow"
	"github.com/xraph/onboard/id"
	"github.com/xraph/onboard/progress"
	"github.com/xraph/onboard/rule"
	"github.com/xraph/onboard/step"
	"github.com/xraph/onboard/store/memory"
)

// fakeIdentity fails the first failures commits, then succeeds.
type fakeIdentity struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      onboard.Answers
}

func (f *fakeIdentity) CommitProfile(_ context.Context, answers onboard.Answers) (onboard.ProfileID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return id.Nil, errors.New("identity backend unavailable")
	}
	f.got = answers.Clone()
	return id.NewProfileID(), nil
}

// countingKV counts Set calls so tests can assert a transition did (or
// did not) persist, and can be switched into a failing mode.
type countingKV struct {
	*memory.Store
	mu       sync.Mutex
	sets     int
	failSets bool
}

func newCountingKV() *countingKV { return &countingKV{Store: memory.New()} }

func (c *countingKV) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.sets++
	fail := c.failSets
	c.mu.Unlock()
	if fail {
		return errors.New("backend unavailable")
	}
	return c.Store.Set(ctx, key, value)
}

func (c *countingKV) setFailing(fail bool) {
	c.mu.Lock()
	c.failSets = fail
	c.mu.Unlock()
}

func (c *countingKV) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// blockingRule parks validation until release is closed, reporting
// cancellation as a warning so the gate marks the result discarded.
func blockingRule(entered chan<- struct{}, release <-chan struct{}) rule.Rule {
	return func(ctx context.Context, _ onboard.Answers) (*onboard.ValidationError, error) {
		entered <- struct{}{}
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type testHarness struct {
	ctrl     *flow.Controller
	identity *fakeIdentity
	kv       *countingKV
	session  id.SessionID
}

func newHarness(t *testing.T, gate *rule.Gate, opts ...flow.Option) *testHarness {
	t.Helper()
	reg := fourStepRegistry(t)
	if gate == nil {
		gate = rule.NewGate()
		gate.Add("username", rule.Required("username"))
	}
	kv := newCountingKV()
	session := id.NewSessionID()
	ident := &fakeIdentity{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]flow.Option{flow.WithLogger(logger)}, opts...)
	ctrl, err := flow.New(context.Background(), reg, gate, progress.New(kv, session), ident, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testHarness{ctrl: ctrl, identity: ident, kv: kv, session: session}
}

func (h *testHarness) advanceToReview(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance welcome: %v", err)
	}
	if _, err := h.ctrl.Advance(ctx, onboard.Answers{"username": "mika"}); err != nil {
		t.Fatalf("Advance username: %v", err)
	}
	if _, err := h.ctrl.Advance(ctx, onboard.Answers{"notifications": "asked"}); err != nil {
		t.Fatalf("Advance notifications: %v", err)
	}
}

// recorderHook records skip and completion events.
type recorderHook struct {
	mu        sync.Mutex
	skipped   []string
	completed []string
	flowDone  bool
	degraded  int
}

func (r *recorderHook) Name() string { return "recorder" }

func (r *recorderHook) OnStepSkipped(_ context.Context, _ id.SessionID, stepKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, stepKey)
	return nil
}

func (r *recorderHook) OnStepCompleted(_ context.Context, _ id.SessionID, stepKey string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, stepKey)
	return nil
}

func (r *recorderHook) OnFlowCompleted(_ context.Context, _ id.SessionID, _ onboard.ProfileID, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flowDone = true
	return nil
}

func (r *recorderHook) OnProgressDegraded(_ context.Context, _ id.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded++
	return nil
}

func TestControllerEmitsLifecycleHooks(t *testing.T) {
	rec := &recorderHook{}
	h := newHarness(t, nil,
		flow.WithHook(rec),
		flow.WithPermissions(onboard.StaticPermissions{
			"notifications": onboard.PermissionGranted,
		}),
	)
	ctx := context.Background()
	h.advanceGrantedToReview(t)
	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance review: %v", err)
	}
	if _, _, err := h.ctrl.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.skipped) != 1 || rec.skipped[0] != "notifications-permission" {
		t.Errorf("skipped = %v, want [notifications-permission]", rec.skipped)
	}
	want := []string{"welcome", "username", "review"}
	if len(rec.completed) != len(want) {
		t.Fatalf("completed = %v, want %v", rec.completed, want)
	}
	for i := range want {
		if rec.completed[i] != want[i] {
			t.Errorf("completed[%d] = %q, want %q", i, rec.completed[i], want[i])
		}
	}
	if !rec.flowDone {
		t.Error("flow completion hook not fired")
	}
}

func TestControllerFreshSessionStartsAtFirstStep(t *testing.T) {
	h := newHarness(t, nil)

	v := h.ctrl.View()
	if v.StepKey != "welcome" || v.Ordinal != 1 {
		t.Errorf("fresh view = %q/%d, want welcome/1", v.StepKey, v.Ordinal)
	}
	if !v.IsFirstStep {
		t.Error("IsFirstStep = false, want true")
	}
	if v.CommitPending || v.Completed {
		t.Error("fresh session must not be pending or completed")
	}
}

func TestControllerAdvanceValidationFailureHoldsPosition(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance welcome: %v", err)
	}
	_, err := h.ctrl.Advance(ctx, onboard.Answers{"username": ""})
	var verr *onboard.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Advance err = %v, want *ValidationError", err)
	}
	if verr.Field != "username" || verr.Code != rule.CodeRequired {
		t.Errorf("ValidationError = %+v, want username/%s", verr, rule.CodeRequired)
	}

	v := h.ctrl.View()
	if v.StepKey != "username" {
		t.Errorf("position moved to %q after failed validation", v.StepKey)
	}
	if v.LastError == nil {
		t.Error("View.LastError = nil after failed validation")
	}

	// The merged answer survives the failure and satisfies the rule on
	// the next attempt without resubmission.
	if _, err := h.ctrl.Advance(ctx, onboard.Answers{"username": "mika"}); err != nil {
		t.Fatalf("Advance retry: %v", err)
	}
	if v := h.ctrl.View(); v.LastError != nil {
		t.Errorf("View.LastError = %v after success, want nil", v.LastError)
	}
}

func TestControllerAdvanceSkipsGrantedPermissionStep(t *testing.T) {
	h := newHarness(t, nil, flow.WithPermissions(onboard.StaticPermissions{
		"notifications": onboard.PermissionGranted,
	}))
	ctx := context.Background()

	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance welcome: %v", err)
	}
	v, err := h.ctrl.Advance(ctx, onboard.Answers{"username": "mika"})
	if err != nil {
		t.Fatalf("Advance username: %v", err)
	}
	if v.StepKey != "review" {
		t.Errorf("landed on %q, want review (notifications skipped)", v.StepKey)
	}
}

func TestControllerAdvanceShowsPermissionStepWhenUnknown(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance welcome: %v", err)
	}
	v, err := h.ctrl.Advance(ctx, onboard.Answers{"username": "mika"})
	if err != nil {
		t.Fatalf("Advance username: %v", err)
	}
	if v.StepKey != "notifications-permission" {
		t.Errorf("landed on %q, want notifications-permission shown on unknown state", v.StepKey)
	}
}

func TestControllerRetreatIsSymmetricWithAdvance(t *testing.T) {
	perms := onboard.StaticPermissions{"notifications": onboard.PermissionGranted}
	h := newHarness(t, nil, flow.WithPermissions(perms))
	ctx := context.Background()
	h.advanceGrantedToReview(t)

	v, err := h.ctrl.Retreat(ctx)
	if err != nil {
		t.Fatalf("Retreat: %v", err)
	}
	if v.StepKey != "username" {
		t.Errorf("Retreat landed on %q, want username (same step skipped both ways)", v.StepKey)
	}
	v, err = h.ctrl.Retreat(ctx)
	if err != nil {
		t.Fatalf("Retreat: %v", err)
	}
	if v.StepKey != "welcome" {
		t.Errorf("Retreat landed on %q, want welcome", v.StepKey)
	}

	// On the first step Retreat is a quiet no-op.
	v, err = h.ctrl.Retreat(ctx)
	if err != nil {
		t.Fatalf("Retreat at first step: %v", err)
	}
	if v.StepKey != "welcome" {
		t.Errorf("Retreat at first step moved to %q", v.StepKey)
	}
}

func (h *testHarness) advanceGrantedToReview(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance welcome: %v", err)
	}
	v, err := h.ctrl.Advance(ctx, onboard.Answers{"username": "mika"})
	if err != nil {
		t.Fatalf("Advance username: %v", err)
	}
	if v.StepKey != "review" {
		t.Fatalf("landed on %q, want review", v.StepKey)
	}
}

func TestControllerRetreatKeepsCompletedAndAnswers(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := h.ctrl.Advance(ctx, onboard.Answers{"username": "mika"}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := h.ctrl.Retreat(ctx); err != nil {
		t.Fatalf("Retreat: %v", err)
	}
	if got := h.ctrl.Answers().Get("username"); got != "mika" {
		t.Errorf("answers lost on retreat: username = %q", got)
	}

	// Re-advancing over the already-completed step needs no new input.
	v, err := h.ctrl.Advance(ctx, nil)
	if err != nil {
		t.Fatalf("re-Advance: %v", err)
	}
	if v.StepKey != "notifications-permission" {
		t.Errorf("re-Advance landed on %q", v.StepKey)
	}
}

func TestControllerJumpToCurrentIsPureNoOp(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	before := h.kv.setCount()
	v, err := h.ctrl.JumpTo(ctx, 1)
	if err != nil {
		t.Fatalf("JumpTo(current): %v", err)
	}
	if v.Ordinal != 1 {
		t.Errorf("Ordinal = %d, want 1", v.Ordinal)
	}
	if got := h.kv.setCount(); got != before {
		t.Errorf("JumpTo(current) wrote to the store: %d sets, want %d", got, before)
	}
}

func TestControllerJumpToRejectsSkippingAhead(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.ctrl.JumpTo(ctx, 3)
	var nav *onboard.NavigationError
	if !errors.As(err, &nav) {
		t.Fatalf("JumpTo(3) err = %v, want *NavigationError", err)
	}
	if !errors.Is(err, onboard.ErrIllegalJump) {
		t.Error("NavigationError should unwrap to ErrIllegalJump")
	}
	if v := h.ctrl.View(); v.Ordinal != 1 {
		t.Errorf("illegal jump moved position to %d", v.Ordinal)
	}
}

func TestControllerJumpToRevisitAndReturn(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.advanceToReview(t)

	v, err := h.ctrl.JumpTo(ctx, 2)
	if err != nil {
		t.Fatalf("JumpTo(2): %v", err)
	}
	if v.StepKey != "username" {
		t.Errorf("revisit landed on %q", v.StepKey)
	}

	// The revisited step already passed validation, so a single-step
	// jump forward is allowed.
	v, err = h.ctrl.JumpTo(ctx, 3)
	if err != nil {
		t.Fatalf("JumpTo(3): %v", err)
	}
	if v.StepKey != "notifications-permission" {
		t.Errorf("forward jump landed on %q", v.StepKey)
	}
}

func TestControllerConcurrentAdvanceIsRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gate := rule.NewGate()
	gate.Add("welcome", blockingRule(entered, release))
	h := newHarness(t, gate)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Advance(ctx, nil)
		errc <- err
	}()
	<-entered

	if _, err := h.ctrl.Advance(ctx, nil); !errors.Is(err, onboard.ErrBusy) {
		t.Errorf("second Advance err = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first Advance: %v", err)
	}
	if v := h.ctrl.View(); v.StepKey != "username" {
		t.Errorf("first Advance landed on %q, want username", v.StepKey)
	}
}

func TestControllerRetreatCancelsOutstandingCheck(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	gate := rule.NewGate()
	gate.Add("username", blockingRule(entered, release))
	h := newHarness(t, gate)
	ctx := context.Background()

	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance welcome: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Advance(ctx, onboard.Answers{"username": "mika"})
		errc <- err
	}()
	<-entered

	v, err := h.ctrl.Retreat(ctx)
	if err != nil {
		t.Fatalf("Retreat: %v", err)
	}
	if v.StepKey != "welcome" {
		t.Errorf("Retreat landed on %q", v.StepKey)
	}

	// The suspended Advance must come back discarded and must not have
	// moved or completed anything.
	if err := <-errc; !errors.Is(err, onboard.ErrCancelled) {
		t.Errorf("suspended Advance err = %v, want ErrCancelled", err)
	}
	if v := h.ctrl.View(); v.StepKey != "welcome" {
		t.Errorf("stale result applied: position = %q", v.StepKey)
	}
}

func TestControllerCompleteBeforeLastStep(t *testing.T) {
	h := newHarness(t, nil)

	_, _, err := h.ctrl.Complete(context.Background())
	if !errors.Is(err, onboard.ErrNotComplete) {
		t.Errorf("Complete err = %v, want ErrNotComplete", err)
	}
}

func TestControllerCommitFailureKeepsProgress(t *testing.T) {
	h := newHarness(t, nil)
	h.identity.failures = 1
	ctx := context.Background()
	h.advanceToReview(t)
	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance review: %v", err)
	}

	v := h.ctrl.View()
	if !v.CommitPending {
		t.Fatal("expected commit-pending state after the last step")
	}
	if _, err := h.ctrl.Advance(ctx, nil); !errors.Is(err, onboard.ErrAwaitingCommit) {
		t.Errorf("Advance at commit point err = %v, want ErrAwaitingCommit", err)
	}

	_, _, err := h.ctrl.Complete(ctx)
	var cerr *onboard.CommitError
	if !errors.As(err, &cerr) {
		t.Fatalf("Complete err = %v, want *CommitError", err)
	}

	// Progress survives the failed commit: another session instance
	// restores straight to the commit-pending point.
	other, err := flow.New(ctx, fourStepRegistry(t), rule.NewGate(), progress.New(h.kv, h.session), h.identity)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if v := other.View(); !v.CommitPending {
		t.Errorf("restored view = %+v, want commit-pending", v)
	}

	// Retry on the original controller succeeds and clears the store.
	profile, v, err := h.ctrl.Complete(ctx)
	if err != nil {
		t.Fatalf("Complete retry: %v", err)
	}
	if profile.IsNil() {
		t.Error("profile ID is nil after successful commit")
	}
	if !v.Completed {
		t.Error("view not terminal after successful commit")
	}
	if got := h.identity.got.Get("username"); got != "mika" {
		t.Errorf("committed answers missing username: %q", got)
	}
	if h.kv.Len() != 0 {
		t.Errorf("store not cleared after commit: %d keys", h.kv.Len())
	}

	if _, err := h.ctrl.Advance(ctx, nil); !errors.Is(err, onboard.ErrCompleted) {
		t.Errorf("Advance after completion err = %v, want ErrCompleted", err)
	}
}

func TestControllerCommitWithRetry(t *testing.T) {
	h := newHarness(t, nil)
	h.identity.failures = 2
	ctx := context.Background()
	h.advanceToReview(t)
	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance review: %v", err)
	}

	profile, v, err := flow.CommitWithRetry(ctx, h.ctrl, backoff.NewConstant(time.Millisecond), 5)
	if err != nil {
		t.Fatalf("CommitWithRetry: %v", err)
	}
	if profile.IsNil() || !v.Completed {
		t.Errorf("CommitWithRetry result = %v/%+v", profile, v)
	}
	if h.identity.calls != 3 {
		t.Errorf("identity calls = %d, want 3", h.identity.calls)
	}
}

func TestControllerCommitWithRetryGivesUp(t *testing.T) {
	h := newHarness(t, nil)
	h.identity.failures = 10
	ctx := context.Background()
	h.advanceToReview(t)
	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance review: %v", err)
	}

	_, _, err := flow.CommitWithRetry(ctx, h.ctrl, backoff.NewConstant(time.Millisecond), 3)
	var cerr *onboard.CommitError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *CommitError", err)
	}
	if h.identity.calls != 3 {
		t.Errorf("identity calls = %d, want 3", h.identity.calls)
	}
}

func TestControllerAdvanceSucceedsWhenSaveFails(t *testing.T) {
	rec := &recorderHook{}
	h := newHarness(t, nil, flow.WithHook(rec))
	ctx := context.Background()
	h.kv.setFailing(true)

	// A failing backend never blocks a transition; the degradation hook
	// fires once though both steps hit the broken store.
	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := h.ctrl.Advance(ctx, onboard.Answers{"username": "mika"}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if v := h.ctrl.View(); v.StepKey != "notifications-permission" {
		t.Errorf("position = %q, want notifications-permission", v.StepKey)
	}
	rec.mu.Lock()
	degraded := rec.degraded
	rec.mu.Unlock()
	if degraded != 1 {
		t.Errorf("degraded hook fired %d times, want 1", degraded)
	}

	// A fresh process never saw the unsaved transitions and restarts at
	// step 1.
	restored, err := flow.New(ctx, fourStepRegistry(t), rule.NewGate(), progress.New(h.kv.Store, h.session), h.identity)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if v := restored.View(); v.Ordinal != 1 {
		t.Errorf("fresh process restored to %d, want 1", v.Ordinal)
	}
}

func TestControllerCompleteWithConfiguredBackoff(t *testing.T) {
	h := newHarness(t, nil, flow.WithCommitBackoff(backoff.NewConstant(time.Millisecond), 3))
	h.identity.failures = 2
	ctx := context.Background()
	h.advanceToReview(t)
	if _, err := h.ctrl.Advance(ctx, nil); err != nil {
		t.Fatalf("Advance review: %v", err)
	}

	profile, v, err := h.ctrl.Complete(ctx)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if profile.IsNil() || !v.Completed {
		t.Errorf("Complete = %v/%+v", profile, v)
	}
	if h.identity.calls != 3 {
		t.Errorf("identity calls = %d, want 3", h.identity.calls)
	}
}

func TestControllerRestoresPersistedPosition(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.advanceToReview(t)

	restored, err := flow.New(ctx, fourStepRegistry(t), rule.NewGate(), progress.New(h.kv, h.session), h.identity)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	v := restored.View()
	if v.StepKey != "review" {
		t.Errorf("restored position = %q, want review", v.StepKey)
	}
	if got := restored.Answers().Get("username"); got != "mika" {
		t.Errorf("restored answers missing username: %q", got)
	}
}

func TestControllerRestartsWhenPersistedPositionOutOfRange(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.advanceToReview(t)

	// A shorter registry (the flow shrank between releases) cannot seat
	// the persisted ordinal, so the session starts over.
	short := step.MustRegistry(
		step.Step{Ordinal: 1, Key: "username", Title: "Username"},
	)
	restored, err := flow.New(ctx, short, rule.NewGate(), progress.New(h.kv, h.session), h.identity)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if v := restored.View(); v.Ordinal != 1 || v.StepKey != "username" {
		t.Errorf("restored view = %+v, want a fresh start", v)
	}
}
