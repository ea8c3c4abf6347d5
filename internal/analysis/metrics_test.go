package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmeijer/socmon/internal/domain"
)

var testAccount = domain.Account{
	ID:       "nederland_instagram_nlembassy",
	Country:  "nederland",
	Platform: domain.PlatformInstagram,
	Handle:   "nlembassy",
}

func post(externalID string, likes, comments, shares int) domain.Post {
	return domain.Post{
		AccountID:  testAccount.ID,
		ExternalID: externalID,
		Platform:   testAccount.Platform,
		PostedAt:   time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
		Likes:      likes,
		Comments:   comments,
		Shares:     shares,
	}
}

func snapshot(day, followers int) domain.FollowerSnapshot {
	return domain.FollowerSnapshot{
		AccountID: testAccount.ID,
		Date:      time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC),
		Followers: followers,
	}
}

func TestCalculateTotalsAndTopPost(t *testing.T) {
	calc := NewEngagementCalculator()

	posts := []domain.Post{
		post("a", 100, 0, 0), // weighted 100
		post("b", 50, 30, 0), // weighted 110
		post("c", 10, 10, 30), // weighted 120
	}
	metrics, err := calc.Calculate(context.Background(), testAccount, "2025-06", posts, nil)
	require.NoError(t, err)

	require.Equal(t, 3, metrics.TotalPosts)
	require.Equal(t, 160, metrics.TotalLikes)
	require.Equal(t, 40, metrics.TotalComments)
	require.Equal(t, 30, metrics.TotalShares)
	require.Equal(t, "c", metrics.TopPostID)
	// No snapshots, so no rate can be computed.
	require.Zero(t, metrics.EngagementRate)
}

func TestCalculateEngagementRate(t *testing.T) {
	calc := NewEngagementCalculator()

	// Weighted engagement: 100 + 20*2 + 10*3 = 170 over 2 posts = 85
	// per post, against 1000 average followers = 8.5%.
	posts := []domain.Post{
		post("a", 60, 10, 5),
		post("b", 40, 10, 5),
	}
	snapshots := []domain.FollowerSnapshot{
		snapshot(1, 900),
		snapshot(30, 1100),
	}
	metrics, err := calc.Calculate(context.Background(), testAccount, "2025-06", posts, snapshots)
	require.NoError(t, err)

	require.Equal(t, 1000, metrics.AvgFollowers)
	require.Equal(t, 200, metrics.FollowerGrowth)
	require.InDelta(t, 22.22, metrics.FollowerGrowthPct, 0.01)
	require.InDelta(t, 8.5, metrics.EngagementRate, 0.0001)
}

func TestCalculateEmptyMonth(t *testing.T) {
	calc := NewEngagementCalculator()

	metrics, err := calc.Calculate(context.Background(), testAccount, "2025-06", nil, nil)
	require.NoError(t, err)
	require.Equal(t, testAccount.ID, metrics.AccountID)
	require.Equal(t, "2025-06", metrics.Month)
	require.Zero(t, metrics.TotalPosts)
	require.Empty(t, metrics.TopPostID)
}

func TestRankByEngagement(t *testing.T) {
	metrics := []domain.MonthlyMetrics{
		{AccountID: "low", EngagementRate: 1.0},
		{AccountID: "high", EngagementRate: 9.0},
		{AccountID: "mid", EngagementRate: 5.0},
		{AccountID: "also-mid", EngagementRate: 5.0},
	}

	ranked := RankByEngagement(metrics)
	require.Len(t, ranked, 4)
	require.Equal(t, "high", ranked[0].AccountID)
	require.Equal(t, 1, ranked[0].Rank)
	require.InDelta(t, 100.0, ranked[0].Percentile, 0.0001)

	// Equal rates order deterministically by account id.
	require.Equal(t, "also-mid", ranked[1].AccountID)
	require.Equal(t, "mid", ranked[2].AccountID)

	require.Equal(t, "low", ranked[3].AccountID)
	require.InDelta(t, 25.0, ranked[3].Percentile, 0.0001)
}

func TestGroupComparison(t *testing.T) {
	platformOf := map[string]string{
		"a": "instagram", "b": "instagram", "c": "twitter",
	}
	metrics := []domain.MonthlyMetrics{
		{AccountID: "a", TotalPosts: 10, EngagementRate: 4.0, AvgFollowers: 1000},
		{AccountID: "b", TotalPosts: 20, EngagementRate: 2.0, AvgFollowers: 3000},
		{AccountID: "c", TotalPosts: 5, EngagementRate: 6.0, AvgFollowers: 500},
	}

	groups := GroupComparison(metrics, func(m domain.MonthlyMetrics) string {
		return platformOf[m.AccountID]
	})
	require.Len(t, groups, 2)

	instagram := groups["instagram"]
	require.Equal(t, 2, instagram.Accounts)
	require.Equal(t, 30, instagram.TotalPosts)
	require.Equal(t, 4000, instagram.TotalFollowers)
	require.InDelta(t, 3.0, instagram.AvgEngagement, 0.0001)

	twitter := groups["twitter"]
	require.Equal(t, 1, twitter.Accounts)
	require.InDelta(t, 6.0, twitter.AvgEngagement, 0.0001)
}
