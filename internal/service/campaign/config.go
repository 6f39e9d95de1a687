// Package campaign implements the campaign execution engine: the
// bounded-concurrency Scheduler, its RetryController, and the Preflight
// checks that gate a run before it starts.
package campaign

import "time"

// Config bounds one Scheduler run.
type Config struct {
	Concurrency int // default 10; range 1..1000

	MaxAttempts int           // default 3, including the first
	BaseDelay   time.Duration // default 1s
	MaxDelay    time.Duration // default 30s

	RatePerMinute int // token bucket capacity/refill basis
	DailyLimit    int // QuotaStore ceiling

	// CircuitBreakerThreshold is the number of consecutive transient
	// provider failures that trips the breaker; 0 disables it.
	CircuitBreakerThreshold int
	CircuitBreakerCooldown  time.Duration

	ProviderTimeout time.Duration // default 30s, enforced by ProviderClient itself
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:             10,
		MaxAttempts:             3,
		BaseDelay:               1 * time.Second,
		MaxDelay:                30 * time.Second,
		RatePerMinute:           60,
		DailyLimit:              1000,
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  1 * time.Minute,
		ProviderTimeout:         30 * time.Second,
	}
}
