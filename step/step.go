// Package step defines flow steps and the immutable ordered registry
// that catalogues them.
//
// A registry is constructed once at startup and never mutated. Multiple
// independently-configured registries can share one engine: the registry
// varies, the engine does not.
package step

import (
	"time"

	"github.com/xraph/onboard"
)

// Predicate decides whether a step should be skipped given the collected
// answers and a fresh permission snapshot. Predicates must be pure: no
// mutation, no I/O.
type Predicate func(answers onboard.Answers, perms onboard.PermissionReader) bool

// Step is one named, ordered stage of a flow.
type Step struct {
	// Ordinal is the step's 1-based position. Ordinals in a registry are
	// unique and contiguous from 1..N.
	Ordinal int

	// Key is the step's stable identifier, unique within a registry.
	Key string

	// Title is the human-readable heading the presentation layer shows.
	Title string

	// Skip, when non-nil, is evaluated before the step is shown. True
	// means the step is bypassed in both directions of traversal.
	Skip Predicate
}

// SkipIfGranted returns a predicate that skips a step when the named
// device permission is already granted, since asking again is moot.
// Denied and unknown both show the step: unknown is the fail-safe
// default, and denied flows show rationale before re-asking.
func SkipIfGranted(permission string) Predicate {
	return func(_ onboard.Answers, perms onboard.PermissionReader) bool {
		return perms != nil && perms.Get(permission) == onboard.PermissionGranted
	}
}

// SkipIfUnderAge returns a predicate that skips a step when the age
// computed from the named birth-date field is below years. Unparseable
// or absent dates do not skip: prefer showing the step.
func SkipIfUnderAge(field string, years int) Predicate {
	return func(answers onboard.Answers, _ onboard.PermissionReader) bool {
		age, ok := onboard.Age(answers.Get(field), time.Now())
		return ok && age < years
	}
}

// SkipIfAnswered returns a predicate that skips a step when the named
// field already holds a value, e.g. data imported from an invite link.
func SkipIfAnswered(field string) Predicate {
	return func(answers onboard.Answers, _ onboard.PermissionReader) bool {
		return answers.Has(field)
	}
}
