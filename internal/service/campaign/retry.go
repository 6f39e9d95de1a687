package campaign

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/resend-dispatch/campaign/internal/domain"
	"github.com/resend-dispatch/campaign/pkg/clock"
)

// RetryController classifies provider failures and enforces the backoff
// policy: exponential delay with jitter, capped, rate-limit
// aware, bounded by MaxAttempts.
type RetryController struct {
	clock       clock.Clock
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	rand        *rand.Rand
}

// NewRetryController creates a RetryController from cfg.
func NewRetryController(c clock.Clock, cfg Config) *RetryController {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	base := cfg.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := cfg.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	return &RetryController{
		clock:       c,
		maxAttempts: maxAttempts,
		baseDelay:   base,
		maxDelay:    max,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Attempt is one ProviderClient.Send call plus its outcome.
type Attempt func(ctx context.Context, attemptNo int) (domain.SendResult, error)

// Run invokes attempt up to MaxAttempts times, sleeping between transient
// failures per the backoff policy. It returns the final SendResult (or
// error) and the 1-based attempt count actually used. If ctx is cancelled
// during a sleep, it returns domain.ErrCancelled instead of recording the
// in-flight attempt as a plain failure.
func (c *RetryController) Run(ctx context.Context, attempt Attempt) (domain.SendResult, int, error) {
	var lastResult domain.SendResult
	var lastErr error

	for n := 1; n <= c.maxAttempts; n++ {
		result, err := attempt(ctx, n)
		if err != nil {
			return result, n, err
		}
		lastResult = result

		switch result.Kind {
		case domain.SendAccepted, domain.SendPermanentFailure:
			return result, n, nil
		case domain.SendTransientFailure:
			if n == c.maxAttempts {
				return result, n, nil
			}
			delay := c.delayFor(n, result.RetryAfterSeconds)
			ch := c.clock.After(delay)
			select {
			case <-ch:
				// proceed to next attempt
			case <-ctx.Done():
				return lastResult, n, domain.ErrCancelled
			}
		}
	}
	return lastResult, c.maxAttempts, lastErr
}

// delayFor computes delay(attempt): exponential backoff with
// jitter in [0.8, 1.2], capped at maxDelay, extended to at least
// retryAfterSeconds (and at least 30s) when the provider specified a cooldown.
func (c *RetryController) delayFor(attempt int, retryAfterSeconds int) time.Duration {
	base := float64(c.baseDelay) * math.Pow(2.0, float64(attempt-1))
	if base > float64(c.maxDelay) {
		base = float64(c.maxDelay)
	}
	jitter := 0.8 + c.rand.Float64()*0.4 // uniform in [0.8, 1.2]
	computed := time.Duration(base * jitter)

	if retryAfterSeconds > 0 {
		floor := time.Duration(retryAfterSeconds) * time.Second
		if floor < 30*time.Second {
			floor = 30 * time.Second
		}
		if computed < floor {
			computed = floor
		}
	}
	return computed
}
