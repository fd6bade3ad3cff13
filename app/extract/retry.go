package extract

import (
	"context"
	"time"

	"github.com/recapio/recap/app/pipeline"
)

const (
	maxAttempts = 3
	retryStep   = time.Second
)

// withRetry runs fn up to maxAttempts times with a linearly increasing delay,
// retrying only transient failures. Each attempt enforces its own wall-clock
// timeout.
func withRetry(ctx context.Context, attemptTimeout time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !pipeline.Retryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryStep):
		}
	}

	return lastErr
}
