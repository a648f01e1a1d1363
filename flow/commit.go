package flow

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/onboard"
	"github.com/xraph/onboard/backoff"
)

// CommitWithRetry calls Complete until it succeeds, the attempt budget
// runs out, or ctx is done. Only commit failures are retried; every
// other error (ErrNotComplete, ErrBusy, validation state) is returned
// immediately because retrying cannot fix it.
func CommitWithRetry(ctx context.Context, c *Controller, strategy backoff.Strategy, maxAttempts int) (onboard.ProfileID, View, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var (
		profile onboard.ProfileID
		view    View
		err     error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		profile, view, err = c.Complete(ctx)
		if err == nil {
			return profile, view, nil
		}
		var cerr *onboard.CommitError
		if !errors.As(err, &cerr) {
			return profile, view, err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return profile, view, ctx.Err()
		case <-time.After(strategy.Delay(attempt)):
		}
	}
	return profile, view, err
}
