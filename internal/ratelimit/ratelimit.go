package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket shared by all callers of one outbound API.
// Burst equals the per-second rate, with a floor of one token.
type Limiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	burst    float64
	tokens   float64
	refilled time.Time
	now      func() time.Time
}

// New creates a limiter allowing rps requests per second. Non-positive
// rates fall back to one request per second.
func New(rps float64) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	burst := rps
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rate:     rps,
		burst:    burst,
		tokens:   burst,
		refilled: time.Now(),
		now:      time.Now,
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait == 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token if one is available and returns zero, otherwise
// it returns how long until the next token accrues.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.refilled).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.refilled = now

	if l.tokens >= 1 {
		l.tokens--
		return 0
	}

	missing := 1 - l.tokens
	return time.Duration(missing / l.rate * float64(time.Second))
}
