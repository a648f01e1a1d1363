// Package flows ships the two signup flows as ready-made registry and
// gate pairs. Both run on the same engine; only the registry data and
// rule wiring differ.
package flows

import (
	"github.com/xraph/onboard/rule"
	"github.com/xraph/onboard/step"
)

// MinPhoneVerificationAge is the privacy threshold below which the
// phone verification steps are skipped entirely.
const MinPhoneVerificationAge = 16

// reservedUsernames are names the full flow refuses regardless of
// availability.
var reservedUsernames = []string{"admin", "administrator", "moderator", "support", "root", "system"}

// Option configures a shipped flow.
type Option func(*config)

type config struct {
	checker *rule.Checker
}

// WithAvailability enables the remote username availability check. Flows
// built without it validate usernames locally only.
func WithAvailability(checker *rule.Checker) Option {
	return func(c *config) { c.checker = checker }
}

// FullSignup builds the 16-step signup flow and its validation gate.
//
// The two phone verification steps carry an age-gated skip: a user whose
// computed age is below MinPhoneVerificationAge goes straight from the
// contacts permission step to success. The permission steps skip
// themselves when the device permission is already granted.
func FullSignup(opts ...Option) (*step.Registry, *rule.Gate) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	reg := step.MustRegistry(
		step.Step{Ordinal: 1, Key: "welcome", Title: "Welcome"},
		step.Step{Ordinal: 2, Key: "contact", Title: "How can we reach you?"},
		step.Step{Ordinal: 3, Key: "username", Title: "Pick a username"},
		step.Step{Ordinal: 4, Key: "password", Title: "Create a password"},
		step.Step{Ordinal: 5, Key: "birth-date", Title: "When were you born?"},
		step.Step{Ordinal: 6, Key: "profile-name", Title: "What should we call you?"},
		step.Step{Ordinal: 7, Key: "photo", Title: "Add a photo"},
		step.Step{Ordinal: 8, Key: "bio", Title: "Tell us about yourself"},
		step.Step{Ordinal: 9, Key: "interests", Title: "Pick your interests"},
		step.Step{Ordinal: 10, Key: "privacy", Title: "Privacy settings"},
		step.Step{Ordinal: 11, Key: "review", Title: "Review your profile"},
		step.Step{Ordinal: 12, Key: "notifications-permission", Title: "Turn on notifications", Skip: step.SkipIfGranted("notifications")},
		step.Step{Ordinal: 13, Key: "contacts-permission", Title: "Find your friends", Skip: step.SkipIfGranted("contacts")},
		step.Step{Ordinal: 14, Key: "phone-intro", Title: "Verify your phone", Skip: step.SkipIfUnderAge("birth_date", MinPhoneVerificationAge)},
		step.Step{Ordinal: 15, Key: "phone-verification", Title: "Enter the code", Skip: step.SkipIfUnderAge("birth_date", MinPhoneVerificationAge)},
		step.Step{Ordinal: 16, Key: "success", Title: "You're all set"},
	)

	gate := rule.NewGate()
	gate.Add("contact",
		rule.AnyOf("email", "phone"),
		rule.WellFormed("email", rule.FormatEmail),
		rule.WellFormed("phone", rule.FormatPhone),
	)
	usernameRules := []rule.Rule{
		rule.Required("username"),
		rule.MinLength("username", 3),
		rule.Reserved("username", reservedUsernames...),
	}
	if cfg.checker != nil {
		usernameRules = append(usernameRules, rule.Available("username", cfg.checker))
	}
	gate.Add("username", usernameRules...)
	gate.Add("password", rule.MinLength("password", 8))
	gate.Add("birth-date", rule.Required("birth_date"), rule.MinAge("birth_date", 13))
	gate.Add("profile-name", rule.Required("profile_name"))
	gate.Add("phone-verification", rule.Required("phone"), rule.WellFormed("phone", rule.FormatPhone))
	return reg, gate
}

// QuickSignup builds the 5-step signup flow and its validation gate. It
// has no age gating; its only skip is the notifications permission step.
func QuickSignup(opts ...Option) (*step.Registry, *rule.Gate) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	reg := step.MustRegistry(
		step.Step{Ordinal: 1, Key: "contact", Title: "How can we reach you?"},
		step.Step{Ordinal: 2, Key: "username", Title: "Pick a username"},
		step.Step{Ordinal: 3, Key: "password", Title: "Create a password"},
		step.Step{Ordinal: 4, Key: "notifications-permission", Title: "Turn on notifications", Skip: step.SkipIfGranted("notifications")},
		step.Step{Ordinal: 5, Key: "done", Title: "Done"},
	)

	gate := rule.NewGate()
	gate.Add("contact",
		rule.AnyOf("email", "phone"),
		rule.WellFormed("email", rule.FormatEmail),
		rule.WellFormed("phone", rule.FormatPhone),
	)
	usernameRules := []rule.Rule{
		rule.Required("username"),
		rule.MinLength("username", 3),
	}
	if cfg.checker != nil {
		usernameRules = append(usernameRules, rule.Available("username", cfg.checker))
	}
	gate.Add("username", usernameRules...)
	gate.Add("password", rule.MinLength("password", 8))
	return reg, gate
}
