// Package ratelimit enforces per-platform request budgets shared by all
// collection workers. The budget is a single logical counter per
// platform: parallel workers draw from it through one serialization
// point, so the real request rate stays bounded no matter how many
// workers run.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmeijer/socmon/internal/domain"
)

// ErrDailyLimitExhausted signals that the per-day ceiling for a platform
// is spent. Callers must treat this as "retry tomorrow", not as a
// transient failure to retry with backoff.
var ErrDailyLimitExhausted = errors.New("daily rate limit exhausted")

// Budget is the configured ceiling for one platform. MinDelay, when set,
// spaces consecutive requests even while budget remains; scraping
// targets tolerate steady trickles far better than bursts.
type Budget struct {
	PerMinute int
	PerDay    int
	MinDelay  time.Duration
}

// DefaultBudgets mirrors the ceilings the collectors were tuned against.
func DefaultBudgets() map[domain.Platform]Budget {
	return map[domain.Platform]Budget{
		domain.PlatformInstagram: {PerMinute: 10, PerDay: 200, MinDelay: 6 * time.Second},
		domain.PlatformFacebook:  {PerMinute: 5, PerDay: 100, MinDelay: 12 * time.Second},
		domain.PlatformTwitter:   {PerMinute: 20, PerDay: 500, MinDelay: 3 * time.Second},
	}
}

// Limiter grants request slots per platform. Acquire blocks until both
// the per-minute and per-day budgets have headroom, then consumes one
// unit; it returns ErrDailyLimitExhausted instead of blocking across a
// day boundary.
type Limiter interface {
	Acquire(ctx context.Context, platform domain.Platform) error
}

type platformCounter struct {
	minuteStart time.Time
	minuteUsed  int
	day         string
	dayUsed     int
	lastRequest time.Time
}

// MemoryLimiter tracks budgets in process memory. Reset boundaries are
// wall-clock aligned: the minute window rolls over on the minute, the
// day counter at midnight in the configured location.
type MemoryLimiter struct {
	budgets  map[domain.Platform]Budget
	location *time.Location

	mu       sync.Mutex
	counters map[domain.Platform]*platformCounter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewMemoryLimiter(budgets map[domain.Platform]Budget, location *time.Location) *MemoryLimiter {
	if location == nil {
		location = time.UTC
	}
	return &MemoryLimiter{
		budgets:  budgets,
		location: location,
		counters: make(map[domain.Platform]*platformCounter),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func (l *MemoryLimiter) Acquire(ctx context.Context, platform domain.Platform) error {
	budget, ok := l.budgets[platform]
	if !ok {
		return fmt.Errorf("no rate budget configured for platform %q", platform)
	}

	for {
		wait, err := l.tryConsume(platform, budget)
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryConsume performs the atomic check-and-increment under the mutex and
// returns how long the caller must wait before trying again; zero means
// the unit was consumed.
func (l *MemoryLimiter) tryConsume(platform domain.Platform, budget Budget) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().In(l.location)
	counter, ok := l.counters[platform]
	if !ok {
		counter = &platformCounter{}
		l.counters[platform] = counter
	}

	day := now.Format("2006-01-02")
	if counter.day != day {
		counter.day = day
		counter.dayUsed = 0
	}

	minuteStart := now.Truncate(time.Minute)
	if !counter.minuteStart.Equal(minuteStart) {
		counter.minuteStart = minuteStart
		counter.minuteUsed = 0
	}

	if counter.dayUsed >= budget.PerDay {
		return 0, ErrDailyLimitExhausted
	}
	if counter.minuteUsed >= budget.PerMinute {
		return minuteStart.Add(time.Minute).Sub(now), nil
	}
	if budget.MinDelay > 0 && !counter.lastRequest.IsZero() {
		if since := now.Sub(counter.lastRequest); since < budget.MinDelay {
			return budget.MinDelay - since, nil
		}
	}

	counter.minuteUsed++
	counter.dayUsed++
	counter.lastRequest = now
	return 0, nil
}

// NextDayStart returns the first instant of the next day in loc, the
// earliest moment a DailyLimitExhausted job may run again.
func NextDayStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
