// Package flow implements the onboarding state machine: the transition
// resolver that walks the step registry honoring skip predicates, and
// the controller that owns session state and exposes advance, retreat,
// jump, and complete.
package flow

import (
	"github.com/xraph/onboard"
	"github.com/xraph/onboard/step"
)

// Transition is the outcome of resolving the next step.
type Transition struct {
	// Next is the step to show. Meaningful only when Complete is false.
	Next step.Step

	// Complete means no visible steps remain: every later step is
	// either past the registry or skipped.
	Complete bool

	// Skipped lists, in order, the keys of steps the walk bypassed.
	Skipped []string
}

// Resolver computes next and previous steps over a registry.
// Resolution is pure: the same {answers, permissions} input always
// yields the same path, which is what makes forward and backward
// traversal symmetric.
type Resolver struct {
	reg *step.Registry
}

// NewResolver creates a resolver over the given registry.
func NewResolver(reg *step.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// NextFrom walks ordinals upward from ordinal+1. The first candidate
// whose skip predicate is false is the result; if none remain, the
// transition is Complete. An unknown permission never skips: predicates
// see unknown and prefer showing the step.
func (r *Resolver) NextFrom(ordinal int, answers onboard.Answers, perms onboard.PermissionReader) (Transition, error) {
	var t Transition
	for o := ordinal + 1; o <= r.reg.Total(); o++ {
		s, err := r.reg.Get(o)
		if err != nil {
			return Transition{}, err
		}
		if s.Skip != nil && s.Skip(answers, perms) {
			t.Skipped = append(t.Skipped, s.Key)
			continue
		}
		t.Next = s
		return t, nil
	}
	t.Complete = true
	return t, nil
}

// Next resolves the step after currentKey. Complete is true when no
// visible steps remain.
func (r *Resolver) Next(currentKey string, answers onboard.Answers, perms onboard.PermissionReader) (Transition, error) {
	s, err := r.reg.ByKey(currentKey)
	if err != nil {
		return Transition{}, err
	}
	return r.NextFrom(s.Ordinal, answers, perms)
}

// PrevFrom walks ordinals downward from ordinal-1 using the identical
// predicates, so backward traversal reproduces the forward path. ok is
// false when no visible step precedes ordinal.
func (r *Resolver) PrevFrom(ordinal int, answers onboard.Answers, perms onboard.PermissionReader) (step.Step, bool, error) {
	top := ordinal - 1
	if top > r.reg.Total() {
		top = r.reg.Total()
	}
	for o := top; o >= 1; o-- {
		s, err := r.reg.Get(o)
		if err != nil {
			return step.Step{}, false, err
		}
		if s.Skip != nil && s.Skip(answers, perms) {
			continue
		}
		return s, true, nil
	}
	return step.Step{}, false, nil
}

// Previous resolves the step before currentKey. ok is false when
// currentKey is the first visible step.
func (r *Resolver) Previous(currentKey string, answers onboard.Answers, perms onboard.PermissionReader) (step.Step, bool, error) {
	s, err := r.reg.ByKey(currentKey)
	if err != nil {
		return step.Step{}, false, err
	}
	return r.PrevFrom(s.Ordinal, answers, perms)
}

// First resolves the first visible step of the flow.
func (r *Resolver) First(answers onboard.Answers, perms onboard.PermissionReader) (Transition, error) {
	return r.NextFrom(0, answers, perms)
}
