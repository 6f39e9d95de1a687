// Package ratelimiter provides a token-bucket admission gate used to cap the
// rate of outbound provider sends.
package ratelimiter

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/resend-dispatch/campaign/pkg/clock"
)

// TokenBucket is a token bucket with capacity equal to ratePerMinute and a
// continuous refill rate of ratePerMinute/60 tokens per second, computed
// from monotonic time. Waiters are served FIFO and the bucket is
// starvation-free: a waiter at the head of the queue is released as soon as
// a token becomes available, before later arrivals.
//
// Bucket state is process-local; on restart the bucket begins full. A 429
// from the provider does not feed back into this bucket — that cooldown is
// the RetryController's responsibility.
//
// Example usage:
//
//	tb := ratelimiter.New(clock.NewSystem(), 60) // 60/minute
//	if err := tb.Acquire(ctx); err != nil {
//	    return err // ctx was cancelled while waiting
//	}
type TokenBucket struct {
	mu sync.Mutex

	clock      clock.Clock
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time

	waiters *list.List // of *waiter, FIFO order
}

type waiter struct {
	ready chan struct{}
}

// New creates a TokenBucket with capacity and refill rate both derived from
// ratePerMinute, starting full.
func New(c clock.Clock, ratePerMinute int) *TokenBucket {
	if ratePerMinute <= 0 {
		ratePerMinute = 1
	}
	now := c.Now()
	return &TokenBucket{
		clock:      c,
		capacity:   float64(ratePerMinute),
		refillRate: float64(ratePerMinute) / 60.0,
		tokens:     float64(ratePerMinute),
		lastRefill: now,
		waiters:    list.New(),
	}
}

// Acquire blocks until a token is available or ctx is cancelled, in which
// case it returns ctx.Err(). Waiters are released in FIFO arrival order.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	b.mu.Lock()
	b.refillLocked()

	if b.waiters.Len() == 0 && b.tokens >= 1 {
		b.tokens--
		b.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{}, 1)}
	elem := b.waiters.PushBack(w)
	b.mu.Unlock()

	for {
		wait := b.nextWaitDuration()
		ch := b.clock.After(wait)

		select {
		case <-w.ready:
			return nil
		case <-ch:
			b.mu.Lock()
			b.refillLocked()
			if b.tokens >= 1 && b.waiters.Front() == elem {
				b.tokens--
				b.waiters.Remove(elem)
				b.mu.Unlock()
				return nil
			}
			b.mu.Unlock()
			// Not our turn yet or insufficient tokens; loop and wait again.
		case <-ctx.Done():
			b.mu.Lock()
			b.waiters.Remove(elem)
			b.mu.Unlock()
			return ctx.Err()
		}
	}
}

// refillLocked adds tokens accrued since lastRefill, up to capacity, and
// wakes any head-of-line waiters that can now be admitted. Caller must hold mu.
func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}

	for b.tokens >= 1 {
		front := b.waiters.Front()
		if front == nil {
			break
		}
		b.tokens--
		b.waiters.Remove(front)
		w := front.Value.(*waiter)
		select {
		case w.ready <- struct{}{}:
		default:
		}
	}
}

// nextWaitDuration estimates how long until one more token accrues; it only
// bounds how often a blocked waiter re-checks — refillLocked recomputes from
// elapsed wall time on every wake, so an imprecise estimate here cannot admit
// a waiter early.
func (b *TokenBucket) nextWaitDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate <= 0 {
		return time.Second
	}
	deficit := 1 - b.tokens
	if deficit <= 0 {
		return time.Millisecond
	}
	secs := deficit / b.refillRate
	d := time.Duration(secs * float64(time.Second))
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}
