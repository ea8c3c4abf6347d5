package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// Artifact is a rendered report ready for a sink.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Renderer turns dashboard data into one artifact format.
type Renderer interface {
	Render(ctx context.Context, data *DashboardData) (Artifact, error)
}

// JSONRenderer emits the dashboard feed verbatim; the web dashboard and
// ad-hoc tooling consume this.
type JSONRenderer struct{}

func (JSONRenderer) Render(_ context.Context, data *DashboardData) (Artifact, error) {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("encode dashboard data: %w", err)
	}
	return Artifact{
		Name:        fmt.Sprintf("dashboard_%s.json", data.Month),
		ContentType: "application/json",
		Data:        encoded,
	}, nil
}

// CSVRenderer emits the per-account metric table. Spreadsheet tools
// ingest it directly, which covers the Excel export path.
type CSVRenderer struct{}

func (CSVRenderer) Render(_ context.Context, data *DashboardData) (Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"account_id", "country", "platform", "handle", "total_posts",
		"total_likes", "total_comments", "total_shares", "avg_followers",
		"follower_growth", "engagement_rate"}
	if err := w.Write(header); err != nil {
		return Artifact{}, fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range data.Accounts {
		record := []string{
			row.Account.ID,
			row.Account.Country,
			string(row.Account.Platform),
			row.Account.Handle,
			strconv.Itoa(row.Metrics.TotalPosts),
			strconv.Itoa(row.Metrics.TotalLikes),
			strconv.Itoa(row.Metrics.TotalComments),
			strconv.Itoa(row.Metrics.TotalShares),
			strconv.Itoa(row.Metrics.AvgFollowers),
			strconv.Itoa(row.Metrics.FollowerGrowth),
			strconv.FormatFloat(row.Metrics.EngagementRate, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return Artifact{}, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Artifact{}, fmt.Errorf("flush csv: %w", err)
	}

	return Artifact{
		Name:        fmt.Sprintf("metrics_%s.csv", data.Month),
		ContentType: "text/csv",
		Data:        buf.Bytes(),
	}, nil
}
