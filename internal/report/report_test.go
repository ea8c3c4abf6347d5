package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/store"
)

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	accounts := []domain.Account{
		{ID: "nederland_instagram_nl", Country: "nederland", Platform: domain.PlatformInstagram, Handle: "nl", Status: domain.AccountStatusActive},
		{ID: "turkije_twitter_tr", Country: "turkije", Platform: domain.PlatformTwitter, Handle: "tr", Status: domain.AccountStatusActive},
	}
	for _, account := range accounts {
		require.NoError(t, s.UpsertAccount(ctx, account))
	}
	require.NoError(t, s.UpsertMetrics(ctx, domain.MonthlyMetrics{
		AccountID: "nederland_instagram_nl", Month: "2025-06",
		TotalPosts: 12, TotalLikes: 340, EngagementRate: 4.2, AvgFollowers: 900,
	}))
	require.NoError(t, s.UpsertMetrics(ctx, domain.MonthlyMetrics{
		AccountID: "turkije_twitter_tr", Month: "2025-06",
		TotalPosts: 7, TotalLikes: 80, EngagementRate: 1.1, AvgFollowers: 400,
	}))
	return s
}

func TestFeedGenerate(t *testing.T) {
	feed := NewFeed(seedStore(t))

	data, err := feed.Generate(context.Background(), "2025-06")
	require.NoError(t, err)
	require.Equal(t, "2025-06", data.Month)
	require.Len(t, data.Accounts, 2)
	require.Len(t, data.Rankings, 2)
	require.Equal(t, "nederland_instagram_nl", data.Rankings[0].AccountID)

	require.Contains(t, data.ByPlatform, "instagram")
	require.Contains(t, data.ByPlatform, "twitter")
	require.Contains(t, data.ByCountry, "nederland")
	require.Equal(t, 1, data.ByCountry["turkije"].Accounts)
}

func TestFeedGenerateEmptyMonth(t *testing.T) {
	feed := NewFeed(seedStore(t))

	data, err := feed.Generate(context.Background(), "2024-01")
	require.NoError(t, err)
	require.Empty(t, data.Accounts)
	require.Empty(t, data.Rankings)
}

func TestJSONRendererRoundTrips(t *testing.T) {
	feed := NewFeed(seedStore(t))
	data, err := feed.Generate(context.Background(), "2025-06")
	require.NoError(t, err)

	artifact, err := JSONRenderer{}.Render(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, "dashboard_2025-06.json", artifact.Name)
	require.Equal(t, "application/json", artifact.ContentType)

	var decoded DashboardData
	require.NoError(t, json.Unmarshal(artifact.Data, &decoded))
	require.Equal(t, data.Month, decoded.Month)
	require.Len(t, decoded.Accounts, 2)
}

func TestCSVRendererColumns(t *testing.T) {
	feed := NewFeed(seedStore(t))
	data, err := feed.Generate(context.Background(), "2025-06")
	require.NoError(t, err)

	artifact, err := CSVRenderer{}.Render(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, "metrics_2025-06.csv", artifact.Name)

	lines := strings.Split(strings.TrimSpace(string(artifact.Data)), "\n")
	require.Len(t, lines, 3) // header + two accounts
	require.True(t, strings.HasPrefix(lines[0], "account_id,country,platform"))
	require.Contains(t, string(artifact.Data), "4.20")
}

func TestLocalSinkWritesFile(t *testing.T) {
	dir := t.TempDir()
	sink := LocalSink{Dir: filepath.Join(dir, "exports")}

	location, err := sink.Put(context.Background(), Artifact{
		Name: "dashboard_2025-06.json",
		Data: []byte(`{"month":"2025-06"}`),
	})
	require.NoError(t, err)

	content, err := os.ReadFile(location)
	require.NoError(t, err)
	require.JSONEq(t, `{"month":"2025-06"}`, string(content))
}
