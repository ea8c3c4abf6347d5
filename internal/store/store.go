// Package store persists the monitoring domain: accounts, normalized
// posts, follower snapshots, computed metrics and collection audit logs.
// Every write is upsert-safe so at-least-once collection never
// duplicates rows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmeijer/socmon/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// AccountFilter narrows List results. Zero values match everything.
type AccountFilter struct {
	Country    string
	Platform   domain.Platform
	ActiveOnly bool
}

type AccountStore interface {
	UpsertAccount(ctx context.Context, account domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]domain.Account, error)
}

type PostStore interface {
	// UpsertPosts writes normalized posts keyed by (account_id,
	// external_id); re-collection refreshes engagement counters in place.
	UpsertPosts(ctx context.Context, posts []domain.Post) error
	ListPostsByMonth(ctx context.Context, accountID, month string) ([]domain.Post, error)
	LatestPostTime(ctx context.Context, accountID string) (time.Time, error)
	CountPosts(ctx context.Context, accountID string) (int, error)
}

type FollowerStore interface {
	UpsertSnapshot(ctx context.Context, snapshot domain.FollowerSnapshot) error
	ListSnapshotsByMonth(ctx context.Context, accountID, month string) ([]domain.FollowerSnapshot, error)
}

type MetricsStore interface {
	UpsertMetrics(ctx context.Context, metrics domain.MonthlyMetrics) error
	GetMetrics(ctx context.Context, accountID, month string) (*domain.MonthlyMetrics, error)
	ListMetricsByMonth(ctx context.Context, month string) ([]domain.MonthlyMetrics, error)
}

type CollectionLogStore interface {
	AppendCollectionLog(ctx context.Context, log domain.CollectionLog) error
}

// Store aggregates every repository the agents need.
type Store interface {
	AccountStore
	PostStore
	FollowerStore
	MetricsStore
	CollectionLogStore
}

// monthBounds returns the [start, end) instants of a YYYY-MM key in UTC.
func monthBounds(month string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}
