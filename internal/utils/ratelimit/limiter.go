// Package ratelimit provides token bucket rate limiting for the gateway and
// the management API. Buckets are kept per client and category.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Limiter represents a rate limiter for a specific client identity.
// It implements a token bucket algorithm where tokens are added at a
// fixed rate and requests consume tokens from the bucket.
type Limiter struct {
	// tokens is the current number of tokens in the bucket
	tokens float64

	// lastTime is the last time tokens were added to the bucket
	lastTime time.Time

	// rate is the token refill rate (tokens per second)
	rate float64

	// capacity is the maximum number of tokens the bucket can hold
	capacity float64

	// now is the clock used for refills
	now func() time.Time

	mu sync.Mutex
}

// Rate controls how many requests per second are allowed
type Rate struct {
	// RequestsPerSecond defines how many tokens are added per second
	RequestsPerSecond float64

	// Burst defines the maximum size of the token bucket
	Burst int
}

// NewLimiter creates a new rate limiter with the specified rate and burst capacity.
//
// Parameters:
//   - rate: The number of tokens per second to add to the bucket
//   - burst: The maximum capacity of the bucket
//
// Returns:
//   - A configured rate limiter
func NewLimiter(rate float64, burst int) *Limiter {
	return newLimiterWithClock(rate, burst, time.Now)
}

func newLimiterWithClock(rate float64, burst int, now func() time.Time) *Limiter {
	return &Limiter{
		tokens:   float64(burst),
		lastTime: now(),
		rate:     rate,
		capacity: float64(burst),
		now:      now,
	}
}

// Allow reports whether one request may proceed and consumes a token if so.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	if l.tokens < 1 {
		return false
	}

	l.tokens--
	return true
}

// RetryAfter returns how long until the next token is available.
// It returns zero when a request would be allowed now.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	if l.tokens >= 1 || l.rate <= 0 {
		return 0
	}
	missing := 1 - l.tokens
	return time.Duration(math.Ceil(missing / l.rate * float64(time.Second)))
}

// ResetTokens refills the bucket to capacity.
func (l *Limiter) ResetTokens() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = l.capacity
	l.lastTime = l.now()
}

// refill adds the tokens accrued since the last call. Callers hold mu.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastTime).Seconds()
	l.lastTime = now

	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
}
