package pipeline

import (
	"context"
	"time"
)

// Defaults for remote tool call retries.
const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 1 * time.Second
)

// CallWithRetry invokes op up to maxAttempts times. After the nth failed
// attempt (1-indexed) it waits baseDelay * 2^n before the next try, so the
// backoff spaces out calls to rate-limited servers while bounding total
// wait. The final attempt's error is returned unchanged so callers can
// classify it.
func CallWithRetry[T any](ctx context.Context, op func(context.Context) (T, error), maxAttempts int, baseDelay time.Duration) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := baseDelay * (1 << attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}
