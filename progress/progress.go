// Package progress persists and restores flow progress so a user can
// resume onboarding after a process restart. Persistence is a
// convenience, never a correctness requirement: a failing backend
// degrades the store to in-memory-only operation.
package progress

import (
	"time"
)

// State is the durable position of one flow session.
//
// Invariants: Completed ⊆ {1..N}; Current ∈ {1..N+1}, where N+1 denotes
// the commit-pending point after the last visible step.
type State struct {
	// Current is the 1-based ordinal of the step the user is on.
	Current int `json:"current"`

	// Completed is the set of ordinals whose steps have passed
	// validation.
	Completed map[int]bool `json:"completed"`

	// SavedAt records when this state was last persisted.
	SavedAt time.Time `json:"saved_at"`
}

// NewState returns the initial state for a fresh session: step 1, empty
// completed set.
func NewState() State {
	return State{Current: 1, Completed: make(map[int]bool)}
}

// MarkCompleted records the ordinal as completed.
func (s *State) MarkCompleted(ordinal int) {
	if s.Completed == nil {
		s.Completed = make(map[int]bool)
	}
	s.Completed[ordinal] = true
}

// IsCompleted reports whether the ordinal's step has passed validation.
func (s State) IsCompleted(ordinal int) bool {
	return s.Completed[ordinal]
}

// Clone returns an independent copy of s.
func (s State) Clone() State {
	cp := State{Current: s.Current, SavedAt: s.SavedAt, Completed: make(map[int]bool, len(s.Completed))}
	for k, v := range s.Completed {
		cp.Completed[k] = v
	}
	return cp
}
