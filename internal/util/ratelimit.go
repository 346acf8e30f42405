package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter paces calls to at most perMinute per minute by enforcing a
// minimum interval between them. Alpaca enforces a per-minute request quota;
// spacing requests evenly stays under it without burst bookkeeping.
type RateLimiter struct {
	interval time.Duration

	mu   sync.Mutex
	next time.Time // earliest instant the next call may proceed
}

// NewRateLimiter creates a limiter allowing perMinute calls per minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RateLimiter{interval: time.Minute / time.Duration(perMinute)}
}

// Wait blocks until the caller's slot arrives or the context is cancelled.
// The first call proceeds immediately.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	at := rl.next
	if at.Before(now) {
		at = now
	}
	rl.next = at.Add(rl.interval)
	rl.mu.Unlock()

	wait := time.Until(at)
	if wait <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
