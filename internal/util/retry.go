package util

import (
	"context"
	"time"
)

// maxRetryBackoff caps the exponential delay so a long retry chain against
// a market-data API never sleeps for minutes at a time.
const maxRetryBackoff = 30 * time.Second

// Retry calls fn until it succeeds or maxAttempts calls have failed. The
// delay between calls starts at baseDelay and doubles per failure, capped
// at maxRetryBackoff. It returns the number of calls made together with
// either nil or the last error; cancellation between calls surfaces as
// ctx.Err().
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) (int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := baseDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		if attempt == maxAttempts {
			return attempt, err
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}
