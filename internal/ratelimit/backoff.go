package ratelimit

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes retry delays: base * 2^(attempt-1), capped at
// Max, with a symmetric jitter fraction so retries across many accounts
// never synchronize into a storm.
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultBackoff is used for job retries and rate-limit waits alike.
var DefaultBackoff = BackoffPolicy{
	Base:   30 * time.Second,
	Max:    15 * time.Minute,
	Jitter: 0.2,
}

// Delay returns the wait before retry number attempt (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.Max {
			delay = p.Max
			break
		}
	}
	if delay > p.Max {
		delay = p.Max
	}

	if p.Jitter > 0 {
		// Spread into [delay*(1-j), delay*(1+j)].
		span := float64(delay) * p.Jitter
		delay += time.Duration((rand.Float64()*2 - 1) * span)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
