// Package collector defines the boundary to the platform-specific
// scraping adapters. The orchestration core treats collectors as opaque:
// it only understands the error taxonomy they report.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/jmeijer/socmon/internal/domain"
)

// Window bounds a collection run. A zero Since means "whatever the
// adapter considers its default recent window".
type Window struct {
	Since time.Time
	Until time.Time
}

// Collector fetches raw posts for one account. Implementations report
// failures through the typed errors below; anything else is treated as
// transient by the data agent.
type Collector interface {
	Fetch(ctx context.Context, account domain.Account, window Window) ([]domain.RawPost, error)
}

// ProfileCollector is implemented by adapters that can also read
// follower counts. Optional: the data agent skips the snapshot when the
// adapter cannot provide one.
type ProfileCollector interface {
	FetchProfile(ctx context.Context, account domain.Account) (followers, following int, err error)
}

// PermanentError marks a failure that retrying cannot fix, such as an
// account that no longer exists. The job moves to dead.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent collector error: %s", e.Reason)
}

// TransientError marks a failure worth retrying with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient collector error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitedError means the platform pushed back. RetryAfter, when
// positive, is the platform's own hint and overrides our backoff.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by platform, retry after %s", e.RetryAfter)
	}
	return "rate limited by platform"
}

// Registry maps platforms to their configured adapters.
type Registry struct {
	collectors map[domain.Platform]Collector
}

func NewRegistry() *Registry {
	return &Registry{collectors: make(map[domain.Platform]Collector)}
}

func (r *Registry) Register(platform domain.Platform, c Collector) {
	r.collectors[platform] = c
}

// Get returns the adapter for platform. A missing adapter is a
// configuration gap, reported as permanent so the job does not burn
// retries on it.
func (r *Registry) Get(platform domain.Platform) (Collector, error) {
	c, ok := r.collectors[platform]
	if !ok {
		return nil, &PermanentError{Reason: fmt.Sprintf("no collector registered for platform %q", platform)}
	}
	return c, nil
}

func (r *Registry) Platforms() []domain.Platform {
	platforms := make([]domain.Platform, 0, len(r.collectors))
	for p := range r.collectors {
		platforms = append(platforms, p)
	}
	return platforms
}
