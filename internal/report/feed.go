// Package report produces the artifacts of the pipeline: the dashboard
// data feed and the tabular exports. Rendering stays behind small
// interfaces so heavier generators (PDF layouts) can be plugged in
// without touching the agents.
package report

import (
	"context"
	"fmt"

	"github.com/jmeijer/socmon/internal/analysis"
	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/store"
)

// DashboardData is the precomputed payload the dashboard serves for one
// month: per-account metrics plus the comparison panels.
type DashboardData struct {
	Month      string                        `json:"month"`
	Accounts   []AccountMetrics              `json:"accounts"`
	Rankings   []analysis.Ranking            `json:"rankings"`
	ByPlatform map[string]analysis.Aggregate `json:"by_platform"`
	ByCountry  map[string]analysis.Aggregate `json:"by_country"`
}

type AccountMetrics struct {
	Account domain.Account        `json:"account"`
	Metrics domain.MonthlyMetrics `json:"metrics"`
}

// Feed assembles dashboard data from stored metrics.
type Feed struct {
	store store.Store
}

func NewFeed(s store.Store) *Feed {
	return &Feed{store: s}
}

func (f *Feed) Generate(ctx context.Context, month string) (*DashboardData, error) {
	metrics, err := f.store.ListMetricsByMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("load metrics for %s: %w", month, err)
	}

	accountByID := make(map[string]domain.Account)
	accounts, err := f.store.ListAccounts(ctx, store.AccountFilter{})
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	for _, account := range accounts {
		accountByID[account.ID] = account
	}

	data := &DashboardData{
		Month:    month,
		Rankings: analysis.RankByEngagement(metrics),
		ByPlatform: analysis.GroupComparison(metrics, func(m domain.MonthlyMetrics) string {
			return string(accountByID[m.AccountID].Platform)
		}),
		ByCountry: analysis.GroupComparison(metrics, func(m domain.MonthlyMetrics) string {
			return accountByID[m.AccountID].Country
		}),
	}
	for _, m := range metrics {
		data.Accounts = append(data.Accounts, AccountMetrics{
			Account: accountByID[m.AccountID],
			Metrics: m,
		})
	}
	return data, nil
}
