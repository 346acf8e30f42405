package util

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, doubling the wait between tries from
// baseDelay. Market-data endpoints throttle and drop connections routinely,
// so transient failures are absorbed here and only the last error surfaces.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := baseDelay << (i - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
