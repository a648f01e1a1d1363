package rule

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/xraph/onboard"
)

// Result is the outcome of validating one step. Exactly one of Valid or
// Err is meaningful; Warnings carries non-fatal degradations either way.
// Cancelled is set when the caller's context was cancelled mid-check;
// the result must be discarded, not applied.
type Result struct {
	Valid     bool
	Err       *onboard.ValidationError
	Warnings  []error
	Cancelled bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the gate's structured logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// Gate maps step keys to their validation rules. Register rules at
// startup with Add; Validate is safe for concurrent use.
type Gate struct {
	mu     sync.RWMutex
	rules  map[string][]Rule
	logger *slog.Logger
}

// NewGate creates an empty validation gate.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		rules:  make(map[string][]Rule),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Add appends rules for a step key. Rules run in registration order and
// validation stops at the first failure.
func (g *Gate) Add(stepKey string, rules ...Rule) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules[stepKey] = append(g.rules[stepKey], rules...)
}

// Validate evaluates the step's rules against the collected answers.
// Steps with no registered rules are always valid. Validation never
// mutates answers.
func (g *Gate) Validate(ctx context.Context, stepKey string, answers onboard.Answers) Result {
	g.mu.RLock()
	rules := g.rules[stepKey]
	g.mu.RUnlock()

	res := Result{Valid: true}
	for _, r := range rules {
		verr, warn := r(ctx, answers)
		if warn != nil {
			if errors.Is(warn, context.Canceled) {
				res.Cancelled = true
				res.Valid = false
				return res
			}
			g.logger.Warn("validation rule degraded",
				slog.String("step", stepKey),
				slog.Any("error", warn),
			)
			res.Warnings = append(res.Warnings, warn)
		}
		if verr != nil {
			verr.Step = stepKey
			res.Valid = false
			res.Err = verr
			return res
		}
	}
	if ctx.Err() != nil {
		res.Cancelled = true
		res.Valid = false
	}
	return res
}
