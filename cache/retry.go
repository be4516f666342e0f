package cache

import (
	"context"
	"math/rand"
	"time"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 500 * time.Millisecond
)

// doWithRetry runs fn up to retryAttempts times with exponential backoff
// and jitter. shouldRetry filters which errors are worth another attempt;
// context cancellation always stops the loop.
func doWithRetry(ctx context.Context, shouldRetry func(error) bool, fn func() error) error {
	var err error
	delay := retryBaseDelay

	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(delay / 2)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay + jitter):
			}
			delay *= 2
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
		}

		err = fn()
		if err == nil || !shouldRetry(err) {
			return err
		}
	}

	return err
}
