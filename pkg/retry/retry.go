package retry

import (
	"context"
	"errors"
	"time"
)

// Do runs fn until it succeeds, returns a Permanent error, the context is
// cancelled, or attempts are used up. attempts counts the first call, so
// attempts=3 means one call and two retries. The last error is joined with
// ErrExhausted when every attempt fails.
func Do(ctx context.Context, attempts int, backoff Backoff, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	if backoff == nil {
		backoff = DefaultBackoff()
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			timer := time.NewTimer(backoff.NextInterval(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		var pe permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		lastErr = err
	}

	return errors.Join(ErrExhausted, lastErr)
}
