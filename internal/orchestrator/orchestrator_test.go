package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/queue"
	"github.com/jmeijer/socmon/internal/store"
)

func seedAccounts(t *testing.T, s store.Store) {
	t.Helper()
	accounts := []domain.Account{
		{ID: "nederland_instagram_nl", Country: "nederland", Platform: domain.PlatformInstagram, Handle: "nl", Status: domain.AccountStatusActive},
		{ID: "nederland_twitter_nl", Country: "nederland", Platform: domain.PlatformTwitter, Handle: "nl", Status: domain.AccountStatusActive},
		{ID: "turkije_instagram_tr", Country: "turkije", Platform: domain.PlatformInstagram, Handle: "tr", Status: domain.AccountStatusActive},
		{ID: "turkije_facebook_tr", Country: "turkije", Platform: domain.PlatformFacebook, Handle: "tr", Status: domain.AccountStatusInactive},
	}
	for _, account := range accounts {
		require.NoError(t, s.UpsertAccount(context.Background(), account))
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, queue.Queue, *store.MemoryStore) {
	t.Helper()
	q := queue.NewMemoryQueue(queue.Options{})
	s := store.NewMemoryStore()
	seedAccounts(t, s)
	o := New(q, s, zap.NewNop(), Options{PollInterval: time.Millisecond})
	o.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return o, q, s
}

func TestPlanCollectSkipsInactiveAccounts(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	ids, err := o.PlanCollect(ctx, CollectScope{})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	snapshot, err := q.StatusSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, snapshot.Count(domain.JobKindCollect, domain.JobStatePending))
}

func TestPlanCollectScoping(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	ids, err := o.PlanCollect(ctx, CollectScope{Country: "turkije"})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	ids, err = o.PlanCollect(ctx, CollectScope{Platform: domain.PlatformInstagram})
	require.NoError(t, err)
	require.Len(t, ids, 2)
}

func TestPlanBackfillWalksMonthsBack(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	ids, err := o.PlanBackfill(ctx, CollectScope{Country: "nederland", Platform: domain.PlatformInstagram}, 3)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	months := make(map[string]bool)
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		require.NoError(t, err)
		var payload domain.CollectPayload
		require.NoError(t, domain.ValidatePayload(job.Kind, job.Payload))
		require.NoError(t, json.Unmarshal(job.Payload, &payload))
		months[payload.Month] = true
	}
	require.Equal(t, map[string]bool{"2025-06": true, "2025-05": true, "2025-04": true}, months)
}

func TestPlanAnalyzeDefaultsToCurrentMonth(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	id, err := o.PlanAnalyze(ctx, "", "")
	require.NoError(t, err)

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	var payload domain.AnalyzePayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	require.Equal(t, "2025-06", payload.Month)
	require.Empty(t, payload.AccountID)
}

func TestPlanReportOneJobPerFormat(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	ids, err := o.PlanReport(ctx, ReportRequest{
		Type:  domain.ReportTypeMonthly,
		Month: "2025-05",
		Formats: []domain.ReportFormat{
			domain.ReportFormatDashboard, domain.ReportFormatExcel,
		},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	snapshot, err := q.StatusSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, snapshot.Count(domain.JobKindReport, domain.JobStatePending))
}

func TestPlanMonthEndGatesReportOnAnalyze(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	ids, err := o.PlanMonthEnd(ctx, "2025-05", []domain.ReportFormat{domain.ReportFormatDashboard})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	analyzeID := ids[0]
	reportJob, err := q.Get(ctx, ids[1])
	require.NoError(t, err)
	require.Equal(t, analyzeID, reportJob.DependsOn)

	// The report stays invisible until the analyze job succeeds.
	claimed, err := q.Claim(ctx, []domain.JobKind{domain.JobKindReport})
	require.NoError(t, err)
	require.Nil(t, claimed)

	claimed, err = q.Claim(ctx, []domain.JobKind{domain.JobKindAnalyze})
	require.NoError(t, err)
	require.Equal(t, analyzeID, claimed.ID)
	require.NoError(t, q.Complete(ctx, analyzeID))

	claimed, err = q.Claim(ctx, []domain.JobKind{domain.JobKindReport})
	require.NoError(t, err)
	require.NotNil(t, claimed)
}

func TestRunStatusCountsAccounts(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	status, err := o.RunStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, status.Accounts)
	require.Equal(t, 3, status.ActiveAccounts)
}

func TestWaitForCompletion(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	ids, err := o.PlanCollect(ctx, CollectScope{Country: "nederland"})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	job, err := q.Claim(ctx, domain.JobKinds)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID))

	job, err = q.Claim(ctx, domain.JobKinds)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, context.DeadlineExceeded, false, 0))

	dead, err := o.WaitForCompletion(ctx, ids)
	require.NoError(t, err)
	require.Equal(t, 1, dead)
}

func TestWaitForCompletionHonorsContext(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	ids, err := o.PlanCollect(ctx, CollectScope{Country: "nederland"})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = o.WaitForCompletion(waitCtx, ids)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
