package collector

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/jmeijer/socmon/internal/domain"
)

// WithBreaker wraps a collector in a circuit breaker. When a platform
// starts failing consistently (blocked scraper, outage) the breaker
// opens and callers fail fast with a transient error instead of burning
// rate budget on requests that cannot succeed.
func WithBreaker(name string, c Collector) Collector {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Permanent errors describe the account, not the platform's
			// health; they must not trip the breaker.
			var perm *PermanentError
			return err == nil || errors.As(err, &perm)
		},
	}
	return &breakerCollector{
		inner:   c,
		breaker: gobreaker.NewCircuitBreaker[[]domain.RawPost](settings),
	}
}

type breakerCollector struct {
	inner   Collector
	breaker *gobreaker.CircuitBreaker[[]domain.RawPost]
}

func (b *breakerCollector) Fetch(ctx context.Context, account domain.Account, window Window) ([]domain.RawPost, error) {
	posts, err := b.breaker.Execute(func() ([]domain.RawPost, error) {
		return b.inner.Fetch(ctx, account, window)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransientError{Err: err}
		}
		return nil, err
	}
	return posts, nil
}

// FetchProfile passes through to the wrapped adapter when it supports
// profile reads; breaker state is tracked on Fetch only.
func (b *breakerCollector) FetchProfile(ctx context.Context, account domain.Account) (int, int, error) {
	pc, ok := b.inner.(ProfileCollector)
	if !ok {
		return 0, 0, &PermanentError{Reason: "collector does not support profile reads"}
	}
	return pc.FetchProfile(ctx, account)
}
