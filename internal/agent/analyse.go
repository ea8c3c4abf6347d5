package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmeijer/socmon/internal/analysis"
	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/store"
)

// AnalyseAgent executes analyze jobs: load the month's collected data,
// compute the metric set, and upsert it. Recomputation over the same
// inputs converges on the same row, so replays are harmless.
type AnalyseAgent struct {
	store      store.Store
	calculator analysis.Calculator
}

func NewAnalyseAgent(s store.Store, calc analysis.Calculator) *AnalyseAgent {
	return &AnalyseAgent{store: s, calculator: calc}
}

func (a *AnalyseAgent) Name() string { return "analyse-agent" }

func (a *AnalyseAgent) Kinds() []domain.JobKind {
	return []domain.JobKind{domain.JobKindAnalyze}
}

func (a *AnalyseAgent) Handle(ctx context.Context, job *domain.Job) error {
	var payload domain.AnalyzePayload
	if err := decodePayload(job.Payload, &payload); err != nil {
		return &PermanentFailure{Err: err}
	}

	// An empty account id means the whole active roster; the monthly
	// pipeline uses this so a single job can gate the report stage.
	if payload.AccountID == "" {
		accounts, err := a.store.ListAccounts(ctx, store.AccountFilter{ActiveOnly: true})
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		for _, account := range accounts {
			if err := a.analyzeAccount(ctx, account, payload.Month); err != nil {
				return err
			}
		}
		return nil
	}

	account, err := a.store.GetAccount(ctx, payload.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &PermanentFailure{Err: err}
		}
		return fmt.Errorf("load account: %w", err)
	}
	return a.analyzeAccount(ctx, *account, payload.Month)
}

func (a *AnalyseAgent) analyzeAccount(ctx context.Context, account domain.Account, month string) error {
	posts, err := a.store.ListPostsByMonth(ctx, account.ID, month)
	if err != nil {
		return fmt.Errorf("load posts for %s: %w", account.ID, err)
	}
	snapshots, err := a.store.ListSnapshotsByMonth(ctx, account.ID, month)
	if err != nil {
		return fmt.Errorf("load snapshots for %s: %w", account.ID, err)
	}

	// A month with zero posts still yields a metrics row; an empty
	// month is a finding, not a failure.
	metrics, err := a.calculator.Calculate(ctx, account, month, posts, snapshots)
	if err != nil {
		return &PermanentFailure{Err: fmt.Errorf("calculate metrics for %s: %w", account.ID, err)}
	}

	if err := a.store.UpsertMetrics(ctx, metrics); err != nil {
		return fmt.Errorf("store metrics for %s: %w", account.ID, err)
	}
	return nil
}
