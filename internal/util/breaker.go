package util

import (
	"sync"
	"time"

	"kairos/internal/errs"
)

// CircuitBreaker fails fast after a run of consecutive failures instead of
// retrying a dead dependency indefinitely. After the cooldown elapses it
// admits a single probe call; the probe's outcome either closes the breaker
// or reopens it.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time // overridable in tests
}

// NewCircuitBreaker creates a breaker that opens after threshold consecutive
// failures and admits a probe after cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Do runs fn if the breaker admits the call, recording the outcome. While the
// breaker is open it returns errs.ErrCircuitOpen without invoking fn.
func (cb *CircuitBreaker) Do(fn func() error) error {
	cb.mu.Lock()
	if cb.failures >= cb.threshold {
		if cb.now().Sub(cb.openedAt) < cb.cooldown || cb.probing {
			cb.mu.Unlock()
			return errs.ErrCircuitOpen
		}
		// Cooldown elapsed: admit this call as the half-open probe.
		cb.probing = true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	if err != nil {
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.openedAt = cb.now()
		}
		return err
	}
	cb.failures = 0
	return nil
}
