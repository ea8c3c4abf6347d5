package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmeijer/socmon/internal/domain"
)

// fakeClock drives the limiter deterministically: sleeps advance the
// clock instead of blocking.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeLimiter(budget Budget, start time.Time) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: start}
	l := NewMemoryLimiter(map[domain.Platform]Budget{
		domain.PlatformInstagram: budget,
	}, time.UTC)
	l.now = func() time.Time { return clock.now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		clock.sleeps = append(clock.sleeps, d)
		clock.now = clock.now.Add(d)
		return nil
	}
	return l, clock
}

func TestAcquireWithinBudget(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newFakeLimiter(Budget{PerMinute: 5, PerDay: 100}, start)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background(), domain.PlatformInstagram))
	}
	require.Empty(t, clock.sleeps)
}

func TestAcquireUnknownPlatform(t *testing.T) {
	l, _ := newFakeLimiter(Budget{PerMinute: 1, PerDay: 1}, time.Now())

	err := l.Acquire(context.Background(), domain.PlatformTwitter)
	require.Error(t, err)
}

func TestAcquireWaitsForNextMinute(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	l, clock := newFakeLimiter(Budget{PerMinute: 2, PerDay: 100}, start)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, domain.PlatformInstagram))
	require.NoError(t, l.Acquire(ctx, domain.PlatformInstagram))

	// Third acquire must wait to the wall-clock minute boundary, not a
	// full minute from now.
	require.NoError(t, l.Acquire(ctx, domain.PlatformInstagram))
	require.Len(t, clock.sleeps, 1)
	require.Equal(t, 30*time.Second, clock.sleeps[0])
	require.Equal(t, start.Add(30*time.Second), clock.now)
}

func TestAcquireDailyLimitExhausted(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newFakeLimiter(Budget{PerMinute: 10, PerDay: 2}, start)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, domain.PlatformInstagram))
	require.NoError(t, l.Acquire(ctx, domain.PlatformInstagram))

	err := l.Acquire(ctx, domain.PlatformInstagram)
	require.ErrorIs(t, err, ErrDailyLimitExhausted)
	// An exhausted day fails fast instead of blocking to midnight.
	require.Empty(t, clock.sleeps)
}

func TestDailyCounterResetsAtMidnight(t *testing.T) {
	start := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	l, clock := newFakeLimiter(Budget{PerMinute: 10, PerDay: 1}, start)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, domain.PlatformInstagram))
	require.ErrorIs(t, l.Acquire(ctx, domain.PlatformInstagram), ErrDailyLimitExhausted)

	clock.now = time.Date(2025, 6, 2, 0, 0, 1, 0, time.UTC)
	require.NoError(t, l.Acquire(ctx, domain.PlatformInstagram))
}

func TestMinDelaySpacesRequests(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newFakeLimiter(Budget{PerMinute: 10, PerDay: 100, MinDelay: 6 * time.Second}, start)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, domain.PlatformInstagram))
	require.NoError(t, l.Acquire(ctx, domain.PlatformInstagram))

	require.Len(t, clock.sleeps, 1)
	require.Equal(t, 6*time.Second, clock.sleeps[0])
}

func TestNextDayStart(t *testing.T) {
	loc := time.UTC

	got := NextDayStart(time.Date(2025, 6, 1, 13, 45, 0, 0, loc), loc)
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, loc), got)

	// Month boundary.
	got = NextDayStart(time.Date(2025, 6, 30, 23, 0, 0, 0, loc), loc)
	require.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, loc), got)
}
