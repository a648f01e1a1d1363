package rule

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xraph/onboard"
)

// AvailabilityChecker asks a remote system whether a value (typically a
// username) is still free. Implementations should honor ctx
// cancellation; the gate bounds every call with a deadline.
type AvailabilityChecker interface {
	CheckAvailable(ctx context.Context, field, value string) (bool, error)
}

// DefaultCheckTimeout bounds a remote availability lookup so the user is
// never blocked indefinitely on a slow backend.
const DefaultCheckTimeout = 3 * time.Second

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithTimeout overrides the per-lookup deadline.
func WithTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) { c.timeout = d }
}

// WithRateLimit caps remote lookups at r per second with the given
// burst. Calls beyond the burst wait, still bounded by the lookup
// deadline.
func WithRateLimit(r rate.Limit, burst int) CheckerOption {
	return func(c *Checker) { c.limiter = rate.NewLimiter(r, burst) }
}

// Checker wraps an AvailabilityChecker with a bounded timeout, request
// coalescing, and optional rate limiting. Concurrent lookups for the
// same field/value pair share one remote call.
type Checker struct {
	remote  AvailabilityChecker
	timeout time.Duration
	limiter *rate.Limiter
	group   singleflight.Group
}

// NewChecker wraps remote with the gate's lookup policy.
func NewChecker(remote AvailabilityChecker, opts ...CheckerOption) *Checker {
	c := &Checker{
		remote:  remote,
		timeout: DefaultCheckTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check performs one bounded lookup. The error return is non-nil when
// the lookup failed or timed out; callers degrade to "assume available".
func (c *Checker) Check(ctx context.Context, field, value string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("rule: availability rate wait: %w", err)
		}
	}

	key := field + "\x00" + value
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.remote.CheckAvailable(ctx, field, value)
	})
	if err != nil {
		return false, fmt.Errorf("rule: availability lookup: %w", err)
	}
	return v.(bool), nil
}

// Available fails with code "taken" when the remote checker reports the
// field's value is in use. A failed or timed-out lookup degrades to
// "unknown, assume available" and is surfaced as an AvailabilityError
// warning rather than a block. Absent fields pass.
func Available(field string, checker *Checker) Rule {
	return func(ctx context.Context, answers onboard.Answers) (*onboard.ValidationError, error) {
		if !answers.Has(field) {
			return nil, nil
		}
		value := answers.Get(field)

		free, err := checker.Check(ctx, field, value)
		if err != nil {
			return nil, &onboard.AvailabilityError{Field: field, Err: err}
		}
		if !free {
			return &onboard.ValidationError{
				Field:   field,
				Code:    CodeTaken,
				Message: fmt.Sprintf("%s %q is already taken", field, value),
			}, nil
		}
		return nil, nil
	}
}
