package step

import (
	"fmt"

	"github.com/xraph/onboard"
)

// Registry is an immutable, ordered catalogue of steps. Construct one
// with NewRegistry at startup; it is safe for concurrent use because it
// is never mutated afterwards.
type Registry struct {
	steps []Step         // index i holds ordinal i+1
	byKey map[string]int // key → slice index
}

// NewRegistry validates and freezes a step catalogue. Ordinals must be
// unique and contiguous from 1..N and keys must be unique; steps may be
// passed in any order.
func NewRegistry(steps ...Step) (*Registry, error) {
	if len(steps) == 0 {
		return nil, onboard.ErrEmptyRegistry
	}

	ordered := make([]Step, len(steps))
	seen := make([]bool, len(steps))
	byKey := make(map[string]int, len(steps))

	for _, s := range steps {
		if s.Ordinal < 1 || s.Ordinal > len(steps) {
			return nil, fmt.Errorf("step: ordinal %d out of range 1..%d: %w",
				s.Ordinal, len(steps), onboard.ErrOrdinalGap)
		}
		idx := s.Ordinal - 1
		if seen[idx] {
			return nil, fmt.Errorf("step: ordinal %d defined twice: %w",
				s.Ordinal, onboard.ErrOrdinalGap)
		}
		if s.Key == "" {
			return nil, fmt.Errorf("step: ordinal %d has empty key: %w",
				s.Ordinal, onboard.ErrDuplicateStepKey)
		}
		if _, dup := byKey[s.Key]; dup {
			return nil, fmt.Errorf("step: key %q defined twice: %w",
				s.Key, onboard.ErrDuplicateStepKey)
		}
		seen[idx] = true
		ordered[idx] = s
		byKey[s.Key] = idx
	}

	return &Registry{steps: ordered, byKey: byKey}, nil
}

// MustRegistry is like NewRegistry but panics on error. Use for
// hardcoded flow definitions.
func MustRegistry(steps ...Step) *Registry {
	r, err := NewRegistry(steps...)
	if err != nil {
		panic(fmt.Sprintf("step: invalid registry: %v", err))
	}
	return r
}

// Total returns the number of steps N.
func (r *Registry) Total() int { return len(r.steps) }

// Get returns the step at the given 1-based ordinal.
func (r *Registry) Get(ordinal int) (Step, error) {
	if ordinal < 1 || ordinal > len(r.steps) {
		return Step{}, fmt.Errorf("step: ordinal %d: %w", ordinal, onboard.ErrStepNotFound)
	}
	return r.steps[ordinal-1], nil
}

// ByKey returns the step with the given key.
func (r *Registry) ByKey(key string) (Step, error) {
	idx, ok := r.byKey[key]
	if !ok {
		return Step{}, fmt.Errorf("step: key %q: %w", key, onboard.ErrStepNotFound)
	}
	return r.steps[idx], nil
}

// ShouldSkip evaluates the named step's skip predicate against the given
// answers and permission snapshot. Steps without a predicate are never
// skipped.
func (r *Registry) ShouldSkip(key string, answers onboard.Answers, perms onboard.PermissionReader) (bool, error) {
	s, err := r.ByKey(key)
	if err != nil {
		return false, err
	}
	if s.Skip == nil {
		return false, nil
	}
	return s.Skip(answers, perms), nil
}

// Keys returns the step keys in ordinal order. The slice is a copy.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.steps))
	for i, s := range r.steps {
		keys[i] = s.Key
	}
	return keys
}
