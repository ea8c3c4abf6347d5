package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmeijer/socmon/internal/domain"
)

func TestUpsertPostsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	post := domain.Post{
		AccountID:   "acc",
		ExternalID:  "p1",
		PostedAt:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Likes:       10,
		CollectedAt: first,
		UpdatedAt:   first,
	}
	require.NoError(t, s.UpsertPosts(ctx, []domain.Post{post}))

	// Re-collecting refreshes counters but keeps the first collection time.
	second := first.Add(24 * time.Hour)
	post.Likes = 25
	post.CollectedAt = second
	post.UpdatedAt = second
	require.NoError(t, s.UpsertPosts(ctx, []domain.Post{post}))

	count, err := s.CountPosts(ctx, "acc")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	posts, err := s.ListPostsByMonth(ctx, "acc", "2025-06")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, 25, posts[0].Likes)
	require.Equal(t, first, posts[0].CollectedAt)
	require.Equal(t, second, posts[0].UpdatedAt)
}

func TestListPostsByMonthBounds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	mk := func(id string, postedAt time.Time) domain.Post {
		return domain.Post{AccountID: "acc", ExternalID: id, PostedAt: postedAt}
	}
	require.NoError(t, s.UpsertPosts(ctx, []domain.Post{
		mk("may", time.Date(2025, 5, 31, 23, 59, 59, 0, time.UTC)),
		mk("first", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		mk("mid", time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)),
		mk("july", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)),
	}))

	posts, err := s.ListPostsByMonth(ctx, "acc", "2025-06")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, "first", posts[0].ExternalID)
	require.Equal(t, "mid", posts[1].ExternalID)

	_, err = s.ListPostsByMonth(ctx, "acc", "not-a-month")
	require.Error(t, err)
}

func TestLatestPostTime(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	latest, err := s.LatestPostTime(ctx, "acc")
	require.NoError(t, err)
	require.True(t, latest.IsZero())

	newest := time.Date(2025, 6, 20, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertPosts(ctx, []domain.Post{
		{AccountID: "acc", ExternalID: "a", PostedAt: newest.Add(-48 * time.Hour)},
		{AccountID: "acc", ExternalID: "b", PostedAt: newest},
		{AccountID: "other", ExternalID: "c", PostedAt: newest.Add(time.Hour)},
	}))

	latest, err = s.LatestPostTime(ctx, "acc")
	require.NoError(t, err)
	require.Equal(t, newest, latest)
}

func TestSnapshotUpsertByDay(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertSnapshot(ctx, domain.FollowerSnapshot{
		AccountID: "acc", Date: day, Followers: 100,
	}))
	require.NoError(t, s.UpsertSnapshot(ctx, domain.FollowerSnapshot{
		AccountID: "acc", Date: day, Followers: 120,
	}))

	snapshots, err := s.ListSnapshotsByMonth(ctx, "acc", "2025-06")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Equal(t, 120, snapshots[0].Followers)
}

func TestGetAccountNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetAccount(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAccountsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	accounts := []domain.Account{
		{ID: "a", Country: "nederland", Platform: domain.PlatformInstagram, Status: domain.AccountStatusActive},
		{ID: "b", Country: "nederland", Platform: domain.PlatformTwitter, Status: domain.AccountStatusInactive},
		{ID: "c", Country: "turkije", Platform: domain.PlatformInstagram, Status: domain.AccountStatusActive},
	}
	for _, account := range accounts {
		require.NoError(t, s.UpsertAccount(ctx, account))
	}

	got, err := s.ListAccounts(ctx, AccountFilter{Country: "nederland"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = s.ListAccounts(ctx, AccountFilter{Platform: domain.PlatformInstagram, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = s.ListAccounts(ctx, AccountFilter{Country: "nederland", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
}

func TestMetricsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertMetrics(ctx, domain.MonthlyMetrics{
		AccountID: "acc", Month: "2025-06", TotalPosts: 4,
	}))
	require.NoError(t, s.UpsertMetrics(ctx, domain.MonthlyMetrics{
		AccountID: "acc", Month: "2025-06", TotalPosts: 9,
	}))

	metrics, err := s.GetMetrics(ctx, "acc", "2025-06")
	require.NoError(t, err)
	require.Equal(t, 9, metrics.TotalPosts)

	byMonth, err := s.ListMetricsByMonth(ctx, "2025-06")
	require.NoError(t, err)
	require.Len(t, byMonth, 1)

	_, err = s.GetMetrics(ctx, "acc", "2025-07")
	require.ErrorIs(t, err, ErrNotFound)
}
