// Package orchestrator plans work as queue jobs and supervises the agent
// pools that execute them. Planning is enqueue-only: the queue is the
// sole coordination medium between the orchestrator and the agents.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmeijer/socmon/internal/agent"
	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/queue"
	"github.com/jmeijer/socmon/internal/store"
)

// Options tunes supervision and maintenance. Zero values fall back to
// the defaults documented per field.
type Options struct {
	// Workers is the runner count per agent. Default 1.
	Workers int

	// PollInterval is how long an idle runner sleeps between claims.
	// Default 1s.
	PollInterval time.Duration

	// StallAfter is how long a job may sit running before the reaper
	// returns it to pending. Default 10m.
	StallAfter time.Duration

	// MaintenanceEvery is the reap+cleanup cadence. Default 1m.
	MaintenanceEvery time.Duration

	// SucceededRetention / DeadRetention bound terminal job lifetimes.
	// Defaults 30 days and 90 days.
	SucceededRetention time.Duration
	DeadRetention      time.Duration

	// Location fixes the wall clock used for month keys and day
	// boundaries. Default UTC.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.StallAfter <= 0 {
		o.StallAfter = 10 * time.Minute
	}
	if o.MaintenanceEvery <= 0 {
		o.MaintenanceEvery = time.Minute
	}
	if o.SucceededRetention <= 0 {
		o.SucceededRetention = 30 * 24 * time.Hour
	}
	if o.DeadRetention <= 0 {
		o.DeadRetention = 90 * 24 * time.Hour
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

type Orchestrator struct {
	queue  queue.Queue
	store  store.Store
	logger *zap.Logger
	opts   Options

	now func() time.Time
}

func New(q queue.Queue, s store.Store, logger *zap.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		queue:  q,
		store:  s,
		logger: logger.Named("orchestrator"),
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

// CollectScope narrows planning to a country and/or platform. Zero
// values match every active account.
type CollectScope struct {
	Country  string
	Platform domain.Platform
}

// PlanCollect enqueues one incremental collect job per active account in
// scope and returns the job ids.
func (o *Orchestrator) PlanCollect(ctx context.Context, scope CollectScope) ([]string, error) {
	accounts, err := o.scopedAccounts(ctx, scope)
	if err != nil {
		return nil, err
	}

	jobs := make([]queue.NewJob, 0, len(accounts))
	for _, account := range accounts {
		jobs = append(jobs, queue.NewJob{
			Kind: domain.JobKindCollect,
			Payload: domain.MustPayload(domain.CollectPayload{
				AccountID: account.ID,
				Platform:  account.Platform,
			}),
		})
	}
	ids, err := o.queue.EnqueueBatch(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("enqueue collect jobs: %w", err)
	}
	o.logger.Info("collect planned",
		zap.Int("jobs", len(ids)),
		zap.String("country", scope.Country),
		zap.String("platform", string(scope.Platform)))
	return ids, nil
}

// PlanBackfill enqueues one collect job per account per month, walking
// backwards from the current month. months counts how far back to go;
// the current month is included.
func (o *Orchestrator) PlanBackfill(ctx context.Context, scope CollectScope, months int) ([]string, error) {
	if months <= 0 {
		months = 12
	}
	accounts, err := o.scopedAccounts(ctx, scope)
	if err != nil {
		return nil, err
	}

	current := o.now().In(o.opts.Location)
	jobs := make([]queue.NewJob, 0, len(accounts)*months)
	for _, account := range accounts {
		for i := 0; i < months; i++ {
			jobs = append(jobs, queue.NewJob{
				Kind: domain.JobKindCollect,
				Payload: domain.MustPayload(domain.CollectPayload{
					AccountID: account.ID,
					Platform:  account.Platform,
					Month:     domain.MonthKey(current.AddDate(0, -i, 0)),
				}),
			})
		}
	}
	ids, err := o.queue.EnqueueBatch(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("enqueue backfill jobs: %w", err)
	}
	o.logger.Info("backfill planned",
		zap.Int("jobs", len(ids)), zap.Int("months", months))
	return ids, nil
}

// PlanAnalyze enqueues one analyze job. An empty accountID covers the
// whole active roster, an empty month defaults to the current month.
func (o *Orchestrator) PlanAnalyze(ctx context.Context, accountID, month string) (string, error) {
	if month == "" {
		month = domain.MonthKey(o.now().In(o.opts.Location))
	}
	id, err := o.queue.Enqueue(ctx, queue.NewJob{
		Kind: domain.JobKindAnalyze,
		Payload: domain.MustPayload(domain.AnalyzePayload{
			AccountID: accountID,
			Month:     month,
		}),
	})
	if err != nil {
		return "", fmt.Errorf("enqueue analyze job: %w", err)
	}
	o.logger.Info("analyze planned",
		zap.String("job_id", id), zap.String("month", month))
	return id, nil
}

// ReportRequest parameterizes report planning. DependsOn, when set,
// gates every planned report job on that job's success.
type ReportRequest struct {
	Type      domain.ReportType
	Month     string
	Year      int
	Formats   []domain.ReportFormat
	DependsOn string
}

// PlanReport enqueues one report job per requested format.
func (o *Orchestrator) PlanReport(ctx context.Context, req ReportRequest) ([]string, error) {
	now := o.now().In(o.opts.Location)
	if req.Type == domain.ReportTypeMonthly && req.Month == "" {
		req.Month = domain.MonthKey(now)
	}
	if req.Type == domain.ReportTypeYearly && req.Year == 0 {
		req.Year = now.Year()
	}
	if len(req.Formats) == 0 {
		req.Formats = []domain.ReportFormat{domain.ReportFormatDashboard}
	}

	jobs := make([]queue.NewJob, 0, len(req.Formats))
	for _, format := range req.Formats {
		jobs = append(jobs, queue.NewJob{
			Kind: domain.JobKindReport,
			Payload: domain.MustPayload(domain.ReportPayload{
				Type:   req.Type,
				Month:  req.Month,
				Year:   req.Year,
				Format: format,
			}),
			DependsOn: req.DependsOn,
		})
	}
	ids, err := o.queue.EnqueueBatch(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("enqueue report jobs: %w", err)
	}
	o.logger.Info("report planned",
		zap.Int("jobs", len(ids)), zap.String("type", string(req.Type)))
	return ids, nil
}

// PlanMonthEnd plans the analyze stage for month and gates the report
// formats on its success, so reports never render stale metrics.
func (o *Orchestrator) PlanMonthEnd(ctx context.Context, month string, formats []domain.ReportFormat) ([]string, error) {
	analyzeID, err := o.PlanAnalyze(ctx, "", month)
	if err != nil {
		return nil, err
	}
	if month == "" {
		month = domain.MonthKey(o.now().In(o.opts.Location))
	}
	reportIDs, err := o.PlanReport(ctx, ReportRequest{
		Type:      domain.ReportTypeMonthly,
		Month:     month,
		Formats:   formats,
		DependsOn: analyzeID,
	})
	if err != nil {
		return nil, err
	}
	return append([]string{analyzeID}, reportIDs...), nil
}

// Status is the operator view: job counts per (kind, state) plus the
// account roster size.
type Status struct {
	Jobs           queue.Snapshot
	Accounts       int
	ActiveAccounts int
}

func (o *Orchestrator) RunStatus(ctx context.Context) (Status, error) {
	snapshot, err := o.queue.StatusSnapshot(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("queue snapshot: %w", err)
	}
	accounts, err := o.store.ListAccounts(ctx, store.AccountFilter{})
	if err != nil {
		return Status{}, fmt.Errorf("list accounts: %w", err)
	}
	status := Status{Jobs: snapshot, Accounts: len(accounts)}
	for _, account := range accounts {
		if account.Status == domain.AccountStatusActive {
			status.ActiveAccounts++
		}
	}
	return status, nil
}

// WaitForCompletion polls until every given job reaches a terminal
// state, then reports how many died. Context cancellation aborts the
// wait, not the jobs.
func (o *Orchestrator) WaitForCompletion(ctx context.Context, jobIDs []string) (dead int, err error) {
	remaining := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		remaining[id] = struct{}{}
	}

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for len(remaining) > 0 {
		for id := range remaining {
			job, err := o.queue.Get(ctx, id)
			if err != nil {
				return dead, fmt.Errorf("poll job %s: %w", id, err)
			}
			switch job.State {
			case domain.JobStateSucceeded:
				delete(remaining, id)
			case domain.JobStateDead:
				dead++
				delete(remaining, id)
			}
		}
		if len(remaining) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return dead, ctx.Err()
		case <-ticker.C:
		}
	}
	return dead, nil
}

// StartAgents runs every handler's runner pool plus the maintenance
// loop until ctx is canceled. It returns once all goroutines have
// stopped.
func (o *Orchestrator) StartAgents(ctx context.Context, handlers []agent.Handler) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, handler := range handlers {
		for i := 0; i < o.opts.Workers; i++ {
			runner := agent.NewRunner(o.queue, handler, o.logger, o.opts.PollInterval)
			g.Go(func() error {
				if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})
		}
	}

	g.Go(func() error {
		o.maintenanceLoop(ctx)
		return nil
	})

	return g.Wait()
}

// maintenanceLoop periodically reaps stalled jobs and removes terminal
// jobs past retention.
func (o *Orchestrator) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(o.opts.MaintenanceEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if reaped, err := o.queue.ReapStalled(ctx, o.opts.StallAfter); err != nil {
			o.logger.Error("stall reap failed", zap.Error(err))
		} else if reaped > 0 {
			o.logger.Warn("stalled jobs returned to pending", zap.Int("reaped", reaped))
		}

		if removed, err := o.queue.Cleanup(ctx, o.opts.SucceededRetention, o.opts.DeadRetention); err != nil {
			o.logger.Error("terminal job cleanup failed", zap.Error(err))
		} else if removed > 0 {
			o.logger.Info("terminal jobs removed", zap.Int("removed", removed))
		}
	}
}

func (o *Orchestrator) scopedAccounts(ctx context.Context, scope CollectScope) ([]domain.Account, error) {
	accounts, err := o.store.ListAccounts(ctx, store.AccountFilter{
		Country:    scope.Country,
		Platform:   scope.Platform,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}
