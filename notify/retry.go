package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"carwatch/telegram"
)

const defaultMaxAttempts = 10

// withRetry runs fn up to maxAttempts times. A rate-limited failure
// sleeps for exactly the wait the transport asked for; any other failure
// retries immediately. The last error is returned once attempts are
// exhausted or the context is cancelled.
func withRetry(ctx context.Context, maxAttempts int, sleep func(context.Context, time.Duration), fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}

		var tgErr *telegram.Error
		if errors.As(lastErr, &tgErr) && tgErr.RateLimited() {
			log.Printf("Warning: flood control exceeded, retrying in %s", tgErr.RetryAfter())
			sleep(ctx, tgErr.RetryAfter())
		} else {
			log.Printf("Warning: delivery failed, trying again: %v", lastErr)
		}
	}

	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
