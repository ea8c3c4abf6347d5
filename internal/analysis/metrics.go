// Package analysis computes engagement metrics and benchmarks. The
// analyse agent treats the Calculator as a black box; this package ships
// the default weighted-engagement implementation.
package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/jmeijer/socmon/internal/domain"
)

// Calculator turns a month of normalized records into a metric set. A
// pure function of its inputs: same posts and snapshots, same metrics.
type Calculator interface {
	Calculate(ctx context.Context, account domain.Account, month string,
		posts []domain.Post, snapshots []domain.FollowerSnapshot) (domain.MonthlyMetrics, error)
}

// EngagementCalculator weighs comments and shares above likes: a comment
// costs the audience more than a like, a share more than a comment.
type EngagementCalculator struct{}

func NewEngagementCalculator() *EngagementCalculator {
	return &EngagementCalculator{}
}

func (c *EngagementCalculator) Calculate(_ context.Context, account domain.Account, month string,
	posts []domain.Post, snapshots []domain.FollowerSnapshot) (domain.MonthlyMetrics, error) {

	metrics := domain.MonthlyMetrics{
		AccountID:    account.ID,
		Month:        month,
		CalculatedAt: time.Now().UTC(),
	}

	topEngagement := -1
	for _, post := range posts {
		metrics.TotalPosts++
		metrics.TotalLikes += post.Likes
		metrics.TotalComments += post.Comments
		metrics.TotalShares += post.Shares

		if engagement := weightedEngagement(post); engagement > topEngagement {
			topEngagement = engagement
			metrics.TopPostID = post.ExternalID
		}
	}

	if len(snapshots) > 0 {
		total := 0
		for _, snapshot := range snapshots {
			total += snapshot.Followers
		}
		metrics.AvgFollowers = total / len(snapshots)

		first, last := snapshots[0].Followers, snapshots[len(snapshots)-1].Followers
		metrics.FollowerGrowth = last - first
		if first > 0 {
			metrics.FollowerGrowthPct = float64(metrics.FollowerGrowth) / float64(first) * 100
		}
	}

	if metrics.AvgFollowers > 0 && metrics.TotalPosts > 0 {
		weighted := metrics.TotalLikes + metrics.TotalComments*2 + metrics.TotalShares*3
		perPost := float64(weighted) / float64(metrics.TotalPosts)
		metrics.EngagementRate = perPost / float64(metrics.AvgFollowers) * 100
	}

	return metrics, nil
}

func weightedEngagement(post domain.Post) int {
	return post.Likes + post.Comments*2 + post.Shares*3
}

// Ranking places one account within a month's benchmark ordering.
type Ranking struct {
	AccountID  string
	Value      float64
	Rank       int
	Percentile float64
}

// RankByEngagement orders a month's metric sets by engagement rate,
// best first, and assigns percentiles.
func RankByEngagement(metrics []domain.MonthlyMetrics) []Ranking {
	ranked := make([]Ranking, 0, len(metrics))
	for _, m := range metrics {
		ranked = append(ranked, Ranking{AccountID: m.AccountID, Value: m.EngagementRate})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].AccountID < ranked[j].AccountID
	})

	total := len(ranked)
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Percentile = float64(total-i) / float64(total) * 100
	}
	return ranked
}

// Aggregate summarizes a group of metric sets for comparisons.
type Aggregate struct {
	Accounts       int
	TotalPosts     int
	AvgEngagement  float64
	TotalFollowers int
}

// GroupComparison aggregates metrics by an arbitrary key, e.g. platform
// or country, for the dashboard's comparison panels.
func GroupComparison(metrics []domain.MonthlyMetrics, keyOf func(domain.MonthlyMetrics) string) map[string]Aggregate {
	groups := make(map[string]Aggregate)
	sums := make(map[string]float64)
	for _, m := range metrics {
		key := keyOf(m)
		agg := groups[key]
		agg.Accounts++
		agg.TotalPosts += m.TotalPosts
		agg.TotalFollowers += m.AvgFollowers
		sums[key] += m.EngagementRate
		groups[key] = agg
	}
	for key, agg := range groups {
		if agg.Accounts > 0 {
			agg.AvgEngagement = sums[key] / float64(agg.Accounts)
			groups[key] = agg
		}
	}
	return groups
}
