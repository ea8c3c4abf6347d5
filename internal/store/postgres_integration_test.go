package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/jmeijer/socmon/internal/domain"
)

// integrationStore connects to the DSN in SOCMON_POSTGRES_DSN_INTEGRATION,
// applies migrations and truncates the domain tables for a clean run.
func integrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("SOCMON_POSTGRES_DSN_INTEGRATION")
	if dsn == "" {
		t.Skip("set SOCMON_POSTGRES_DSN_INTEGRATION to run Postgres integration tests")
	}

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE accounts, posts, follower_snapshots, monthly_metrics, collection_log")
	require.NoError(t, err)

	return NewPostgresStore(pool)
}

func seedIntegrationAccount(t *testing.T, s *PostgresStore) domain.Account {
	t.Helper()
	account := domain.Account{
		ID:       "nederland_instagram_nlembassy",
		Country:  "nederland",
		Platform: domain.PlatformInstagram,
		Handle:   "nlembassy",
		Status:   domain.AccountStatusActive,
	}
	require.NoError(t, s.UpsertAccount(context.Background(), account))
	return account
}

func TestPostgresUpsertPostsIsIdempotent(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	account := seedIntegrationAccount(t, s)

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	post := domain.Post{
		AccountID:   account.ID,
		ExternalID:  "p1",
		PostedAt:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Likes:       10,
		CollectedAt: first,
		UpdatedAt:   first,
	}
	require.NoError(t, s.UpsertPosts(ctx, []domain.Post{post}))

	post.Likes = 25
	post.CollectedAt = first.Add(24 * time.Hour)
	post.UpdatedAt = post.CollectedAt
	require.NoError(t, s.UpsertPosts(ctx, []domain.Post{post}))

	count, err := s.CountPosts(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	posts, err := s.ListPostsByMonth(ctx, account.ID, "2025-06")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, 25, posts[0].Likes)
	require.Equal(t, first, posts[0].CollectedAt.UTC())
}

func TestPostgresAccountRoundTrip(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	account := seedIntegrationAccount(t, s)

	stored, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, account.Handle, stored.Handle)

	account.Status = domain.AccountStatusInactive
	require.NoError(t, s.UpsertAccount(ctx, account))

	active, err := s.ListAccounts(ctx, AccountFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Empty(t, active)

	_, err = s.GetAccount(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresMetricsRoundTrip(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	account := seedIntegrationAccount(t, s)

	metrics := domain.MonthlyMetrics{
		AccountID:      account.ID,
		Month:          "2025-06",
		TotalPosts:     3,
		TotalLikes:     60,
		EngagementRate: 4.2,
		CalculatedAt:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpsertMetrics(ctx, metrics))

	// Recomputing the same month overwrites instead of duplicating.
	metrics.TotalLikes = 75
	require.NoError(t, s.UpsertMetrics(ctx, metrics))

	rows, err := s.ListMetricsByMonth(ctx, "2025-06")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 75, rows[0].TotalLikes)
}
