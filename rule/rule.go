// Package rule implements the per-step validation gate: declarative,
// composable rules evaluated over the collected answers before the flow
// may advance. Rules never mutate state.
package rule

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xraph/onboard"
)

// Rule checks one constraint over the collected answers. A nil verr
// means the constraint holds. warn carries non-fatal degradations (e.g.
// a remote availability check that timed out) which never block the
// flow.
type Rule func(ctx context.Context, answers onboard.Answers) (verr *onboard.ValidationError, warn error)

// Stable error codes surfaced to the presentation layer.
const (
	CodeRequired  = "required"
	CodeFormat    = "format"
	CodeMinLength = "min_length"
	CodeAnyOf     = "any_of"
	CodeMinAge    = "min_age"
	CodeReserved  = "reserved"
	CodeTaken     = "taken"
)

// Required fails when the field is absent or empty.
func Required(field string) Rule {
	return func(_ context.Context, answers onboard.Answers) (*onboard.ValidationError, error) {
		if !answers.Has(field) {
			return &onboard.ValidationError{
				Field:   field,
				Code:    CodeRequired,
				Message: fmt.Sprintf("%s is required", field),
			}, nil
		}
		return nil, nil
	}
}

// Format kinds understood by the Format rule.
type Format string

const (
	// FormatEmail matches a well-formed contact email address.
	FormatEmail Format = "email"
	// FormatPhone matches an E.164-style phone number.
	FormatPhone Format = "phone"
)

var formatPatterns = map[Format]*regexp.Regexp{
	FormatEmail: regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
	FormatPhone: regexp.MustCompile(`^\+?[0-9][0-9 \-()]{5,18}[0-9]$`),
}

// WellFormed fails when the field is present but does not match the
// given format. Absent fields pass: presence is Required's (or AnyOf's)
// concern, so an optional field's format is only checked once supplied.
func WellFormed(field string, kind Format) Rule {
	pattern, ok := formatPatterns[kind]
	if !ok {
		panic(fmt.Sprintf("rule: unknown format kind %q", kind))
	}
	return func(_ context.Context, answers onboard.Answers) (*onboard.ValidationError, error) {
		if !answers.Has(field) {
			return nil, nil
		}
		if !pattern.MatchString(answers.Get(field)) {
			return &onboard.ValidationError{
				Field:   field,
				Code:    CodeFormat,
				Message: fmt.Sprintf("%s is not a valid %s", field, kind),
			}, nil
		}
		return nil, nil
	}
}

// MinLength fails when the field's value is shorter than n runes.
// Absent fields fail too: a minimum length implies the field matters.
func MinLength(field string, n int) Rule {
	return func(_ context.Context, answers onboard.Answers) (*onboard.ValidationError, error) {
		if len([]rune(answers.Get(field))) < n {
			return &onboard.ValidationError{
				Field:   field,
				Code:    CodeMinLength,
				Message: fmt.Sprintf("%s must be at least %d characters", field, n),
			}, nil
		}
		return nil, nil
	}
}

// AnyOf fails unless at least one of the named fields is present. Use it
// for "email or phone" style constraints where each field is optional on
// its own.
func AnyOf(fields ...string) Rule {
	return func(_ context.Context, answers onboard.Answers) (*onboard.ValidationError, error) {
		for _, f := range fields {
			if answers.Has(f) {
				return nil, nil
			}
		}
		return &onboard.ValidationError{
			Field:   fields[0],
			Code:    CodeAnyOf,
			Message: fmt.Sprintf("provide at least one of: %s", strings.Join(fields, ", ")),
		}, nil
	}
}

// MinAge fails when the age computed from the field's birth date is
// below years, or when a present value does not parse. Absent fields
// pass; pair with Required when the date is mandatory.
func MinAge(field string, years int) Rule {
	return MinAgeAt(field, years, time.Now)
}

// MinAgeAt is MinAge with an injectable clock.
func MinAgeAt(field string, years int, now func() time.Time) Rule {
	return func(_ context.Context, answers onboard.Answers) (*onboard.ValidationError, error) {
		if !answers.Has(field) {
			return nil, nil
		}
		age, ok := onboard.Age(answers.Get(field), now())
		if !ok {
			return &onboard.ValidationError{
				Field:   field,
				Code:    CodeFormat,
				Message: fmt.Sprintf("%s is not a valid date (%s)", field, onboard.BirthDateLayout),
			}, nil
		}
		if age < years {
			return &onboard.ValidationError{
				Field:   field,
				Code:    CodeMinAge,
				Message: fmt.Sprintf("you must be at least %d years old", years),
			}, nil
		}
		return nil, nil
	}
}

// Reserved fails when the field's value, compared case-insensitively,
// matches one of the reserved values. Absent fields pass.
func Reserved(field string, values ...string) Rule {
	reserved := make(map[string]struct{}, len(values))
	for _, v := range values {
		reserved[strings.ToLower(v)] = struct{}{}
	}
	return func(_ context.Context, answers onboard.Answers) (*onboard.ValidationError, error) {
		if !answers.Has(field) {
			return nil, nil
		}
		if _, hit := reserved[strings.ToLower(answers.Get(field))]; hit {
			return &onboard.ValidationError{
				Field:   field,
				Code:    CodeReserved,
				Message: fmt.Sprintf("%s %q is reserved", field, answers.Get(field)),
			}, nil
		}
		return nil, nil
	}
}
