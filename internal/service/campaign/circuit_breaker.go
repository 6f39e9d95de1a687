package campaign

import (
	"sync"
	"time"

	"github.com/resend-dispatch/campaign/pkg/clock"
)

// circuitBreaker is ambient resilience around ProviderClient: once
// consecutive failures reach threshold, it stays open for cooldownPeriod so
// the scheduler stops burning retry budget against a provider that is
// clearly down, then self-resets. Adapted from the
// teacher's broadcast.CircuitBreaker.
type circuitBreaker struct {
	mu              sync.Mutex
	clock           clock.Clock
	threshold       int
	cooldownPeriod  time.Duration
	failures        int
	lastFailureTime time.Time
	open            bool
}

func newCircuitBreaker(c clock.Clock, threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{clock: c, threshold: threshold, cooldownPeriod: cooldown}
}

// isOpen reports whether sends should currently be short-circuited. A
// disabled breaker (threshold <= 0) is never open. An open breaker
// self-resets (half-opens) once cooldownPeriod has elapsed since the last
// failure, so the next call is allowed to probe the provider again.
func (b *circuitBreaker) isOpen() bool {
	if b.threshold <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return false
	}
	if b.clock.Since(b.lastFailureTime) >= b.cooldownPeriod {
		b.open = false
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) recordSuccess() {
	if b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

func (b *circuitBreaker) recordFailure() {
	if b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailureTime = b.clock.Now()
	if b.failures >= b.threshold {
		b.open = true
	}
}
