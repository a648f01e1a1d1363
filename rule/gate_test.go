package rule_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/onboard"
	"github.com/xraph/onboard/rule"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGate_NoRulesIsValid(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	res := g.Validate(context.Background(), "welcome", onboard.Answers{})
	if !res.Valid {
		t.Errorf("step with no rules should validate, got %+v", res.Err)
	}
}

func TestGate_Required(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("username", rule.Required("username"))

	res := g.Validate(context.Background(), "username", onboard.Answers{})
	if res.Valid {
		t.Fatal("missing field should fail")
	}
	if res.Err.Code != rule.CodeRequired {
		t.Errorf("code = %q, want %q", res.Err.Code, rule.CodeRequired)
	}
	if res.Err.Step != "username" {
		t.Errorf("step = %q, want %q", res.Err.Step, "username")
	}

	res = g.Validate(context.Background(), "username", onboard.Answers{"username": "ada"})
	if !res.Valid {
		t.Errorf("present field should pass, got %+v", res.Err)
	}
}

func TestGate_StopsAtFirstFailure(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("account",
		rule.Required("username"),
		rule.MinLength("username", 3),
	)

	res := g.Validate(context.Background(), "account", onboard.Answers{})
	if res.Valid || res.Err.Code != rule.CodeRequired {
		t.Errorf("want first failure (required), got %+v", res.Err)
	}
}

func TestWellFormed_Email(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("contact", rule.WellFormed("email", rule.FormatEmail))

	cases := []struct {
		email string
		valid bool
	}{
		{"ada@example.com", true},
		{"a.b+tag@sub.example.org", true},
		{"nope", false},
		{"two@@example.com", false},
		{"noat.example.com", false},
	}
	for _, tc := range cases {
		res := g.Validate(context.Background(), "contact", onboard.Answers{"email": tc.email})
		if res.Valid != tc.valid {
			t.Errorf("email %q: valid = %v, want %v", tc.email, res.Valid, tc.valid)
		}
	}
}

func TestWellFormed_SkipsAbsentField(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("contact", rule.WellFormed("email", rule.FormatEmail))

	// Absent optional field: format is not evaluated.
	res := g.Validate(context.Background(), "contact", onboard.Answers{"phone": "+15551234567"})
	if !res.Valid {
		t.Errorf("absent email should not fail format, got %+v", res.Err)
	}
}

// Supplying only a phone number passes the cross-field "at least one"
// rule without the email format rule being evaluated.
func TestAnyOf_PhoneOnly(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("contact",
		rule.AnyOf("email", "phone"),
		rule.WellFormed("email", rule.FormatEmail),
		rule.WellFormed("phone", rule.FormatPhone),
	)

	res := g.Validate(context.Background(), "contact", onboard.Answers{"phone": "+1 555 123-4567"})
	if !res.Valid {
		t.Fatalf("phone-only should pass, got %+v", res.Err)
	}

	res = g.Validate(context.Background(), "contact", onboard.Answers{})
	if res.Valid || res.Err.Code != rule.CodeAnyOf {
		t.Errorf("neither field: want any_of failure, got %+v", res.Err)
	}
}

func TestMinLength(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("password", rule.MinLength("password", 8))

	res := g.Validate(context.Background(), "password", onboard.Answers{"password": "short"})
	if res.Valid || res.Err.Code != rule.CodeMinLength {
		t.Errorf("short password: got %+v", res.Err)
	}

	res = g.Validate(context.Background(), "password", onboard.Answers{"password": "long enough"})
	if !res.Valid {
		t.Errorf("long password should pass, got %+v", res.Err)
	}
}

func TestMinAge(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) }
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("birth", rule.MinAgeAt("birth_date", 13, now))

	cases := []struct {
		date string
		code string
	}{
		{"2010-06-14", ""},        // turned 16 yesterday
		{"2013-06-15", ""},        // 13 today
		{"2013-06-16", "min_age"}, // 13 tomorrow
		{"2020-01-01", "min_age"},
		{"garbage", "format"},
	}
	for _, tc := range cases {
		res := g.Validate(context.Background(), "birth", onboard.Answers{"birth_date": tc.date})
		switch {
		case tc.code == "" && !res.Valid:
			t.Errorf("date %q: want valid, got %+v", tc.date, res.Err)
		case tc.code != "" && (res.Valid || res.Err.Code != tc.code):
			t.Errorf("date %q: want code %q, got %+v", tc.date, tc.code, res.Err)
		}
	}
}

func TestReserved(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("username", rule.Reserved("username", "admin", "root", "support"))

	res := g.Validate(context.Background(), "username", onboard.Answers{"username": "Admin"})
	if res.Valid || res.Err.Code != rule.CodeReserved {
		t.Errorf("reserved name (case-insensitive): got %+v", res.Err)
	}

	res = g.Validate(context.Background(), "username", onboard.Answers{"username": "ada"})
	if !res.Valid {
		t.Errorf("unreserved name should pass, got %+v", res.Err)
	}
}

func TestValidate_NeverMutatesAnswers(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("contact", rule.AnyOf("email", "phone"), rule.Required("email"))

	answers := onboard.Answers{"email": "ada@example.com"}
	before := answers.Clone()
	_ = g.Validate(context.Background(), "contact", answers)

	if len(answers) != len(before) || answers["email"] != before["email"] {
		t.Error("Validate mutated answers")
	}
}

func TestValidate_CancelledContext(t *testing.T) {
	g := rule.NewGate(rule.WithLogger(discardLogger()))
	g.Add("username", rule.Required("username"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := g.Validate(ctx, "username", onboard.Answers{"username": "ada"})
	if !res.Cancelled {
		t.Error("expected Cancelled result for cancelled context")
	}
	if res.Valid {
		t.Error("cancelled result must not read as valid")
	}
}

func TestValidationError_Is(t *testing.T) {
	var navErr error = &onboard.NavigationError{From: 3, To: 7, Reason: "forward jump"}
	if !errors.Is(navErr, onboard.ErrIllegalJump) {
		t.Error("NavigationError should unwrap to ErrIllegalJump")
	}
}
