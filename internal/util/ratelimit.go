package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter paces calls against an upstream per-minute quota, such as the
// Alpaca market-data budget. Each caller is handed the next free slot on a
// fixed-interval schedule and sleeps until it arrives, so concurrent
// fetches queue instead of bursting.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewRateLimiter creates a limiter that admits perMinute calls per minute.
// Values below one are treated as one.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &RateLimiter{interval: time.Minute / time.Duration(perMinute)}
}

// Wait blocks until the caller's slot arrives or the context ends. The
// first call on an idle limiter proceeds immediately.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	slot := rl.next
	if now := time.Now(); slot.Before(now) {
		slot = now
	}
	rl.next = slot.Add(rl.interval)
	rl.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
