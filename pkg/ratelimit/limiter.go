package ratelimit

import (
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request
	Wait()
	// Reset resets the rate limiter state
	Reset()
}

// Interval enforces a minimum gap between consecutive calls. It is the
// process-wide throttle for the VK API, which caps calls per second per
// token rather than allowing bursts.
type Interval struct {
	minInterval time.Duration
	lastCall    time.Time
	mu          sync.Mutex
}

// NewInterval creates a minimum-interval rate limiter.
func NewInterval(minInterval time.Duration) *Interval {
	return &Interval{minInterval: minInterval}
}

// Allow checks if a call can proceed now, claiming the slot if it can.
func (i *Interval) Allow() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	if i.lastCall.IsZero() || now.Sub(i.lastCall) >= i.minInterval {
		i.lastCall = now
		return true
	}
	return false
}

// Wait blocks until the interval has elapsed, then claims the slot.
func (i *Interval) Wait() {
	for {
		i.mu.Lock()
		now := time.Now()
		if i.lastCall.IsZero() || now.Sub(i.lastCall) >= i.minInterval {
			i.lastCall = now
			i.mu.Unlock()
			return
		}
		remaining := i.minInterval - now.Sub(i.lastCall)
		i.mu.Unlock()
		time.Sleep(remaining)
	}
}

// Reset clears the last-call timestamp.
func (i *Interval) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastCall = time.Time{}
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	capacity     int           // Maximum number of tokens
	tokens       int           // Current number of tokens
	refillPeriod time.Duration // Period after which bucket is refilled
	lastRefill   time.Time     // Last time the bucket was refilled
	mu           sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait() {
	for !tb.Allow() {
		tb.mu.Lock()
		timeUntilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if timeUntilRefill > 0 {
			time.Sleep(timeUntilRefill)
		} else {
			// Small sleep to prevent busy waiting
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refill adds tokens based on elapsed time
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	if elapsed >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}
