package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmeijer/socmon/internal/collector"
	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/queue"
	"github.com/jmeijer/socmon/internal/ratelimit"
	"github.com/jmeijer/socmon/internal/store"
)

// DataAgent executes collect jobs: acquire a rate slot, fetch through
// the platform adapter, upsert normalized records, and chain an analyze
// job on success.
type DataAgent struct {
	queue      queue.Queue
	store      store.Store
	collectors *collector.Registry
	limiter    ratelimit.Limiter
	logger     *zap.Logger
	location   *time.Location

	// defaultWindow bounds incremental collection when an account has
	// no stored posts yet.
	defaultWindow time.Duration

	now func() time.Time
}

type DataAgentConfig struct {
	Queue         queue.Queue
	Store         store.Store
	Collectors    *collector.Registry
	Limiter       ratelimit.Limiter
	Logger        *zap.Logger
	Location      *time.Location
	DefaultWindow time.Duration
}

func NewDataAgent(cfg DataAgentConfig) *DataAgent {
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	window := cfg.DefaultWindow
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &DataAgent{
		queue:         cfg.Queue,
		store:         cfg.Store,
		collectors:    cfg.Collectors,
		limiter:       cfg.Limiter,
		logger:        cfg.Logger,
		location:      location,
		defaultWindow: window,
		now:           time.Now,
	}
}

func (a *DataAgent) Name() string { return "data-agent" }

func (a *DataAgent) Kinds() []domain.JobKind {
	return []domain.JobKind{domain.JobKindCollect}
}

func (a *DataAgent) Handle(ctx context.Context, job *domain.Job) error {
	var payload domain.CollectPayload
	if err := decodePayload(job.Payload, &payload); err != nil {
		return &PermanentFailure{Err: err}
	}

	account, err := a.store.GetAccount(ctx, payload.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &PermanentFailure{Err: err}
		}
		return fmt.Errorf("load account: %w", err)
	}

	adapter, err := a.collectors.Get(account.Platform)
	if err != nil {
		return &PermanentFailure{Err: err}
	}

	window, err := a.collectionWindow(ctx, *account, payload)
	if err != nil {
		return fmt.Errorf("determine window: %w", err)
	}

	// The rate slot is acquired after the claim, never under it; an
	// exhausted daily budget is an expected condition, so the attempt
	// is handed back rather than burned.
	if err := a.limiter.Acquire(ctx, account.Platform); err != nil {
		if errors.Is(err, ratelimit.ErrDailyLimitExhausted) {
			return &RescheduleJob{
				At:     ratelimit.NextDayStart(a.now(), a.location),
				Reason: "daily rate budget exhausted",
			}
		}
		return fmt.Errorf("acquire rate slot: %w", err)
	}

	startedAt := a.now().UTC()
	raw, err := adapter.Fetch(ctx, *account, window)
	if err != nil {
		a.logCollection(ctx, *account, startedAt, 0, err)
		return classifyCollectorError(err)
	}

	collectedAt := a.now().UTC()
	posts := make([]domain.Post, 0, len(raw))
	for _, p := range raw {
		posts = append(posts, p.Normalize(*account, collectedAt))
	}
	if err := a.store.UpsertPosts(ctx, posts); err != nil {
		return fmt.Errorf("store posts: %w", err)
	}

	if profiles, ok := adapter.(collector.ProfileCollector); ok {
		followers, following, profErr := profiles.FetchProfile(ctx, *account)
		if profErr != nil {
			// Follower counts are a nice-to-have on top of a successful
			// post collection; losing one snapshot is not worth a retry.
			a.logger.Warn("profile fetch failed",
				zap.String("account_id", account.ID), zap.Error(profErr))
		} else {
			snapshot := domain.FollowerSnapshot{
				AccountID:   account.ID,
				Date:        collectedAt.Truncate(24 * time.Hour),
				Followers:   followers,
				Following:   following,
				CollectedAt: collectedAt,
			}
			if err := a.store.UpsertSnapshot(ctx, snapshot); err != nil {
				return fmt.Errorf("store follower snapshot: %w", err)
			}
		}
	}

	a.logCollection(ctx, *account, startedAt, len(posts), nil)

	// Chain the analysis stage only now that collection has actually
	// succeeded; the completed predecessor is the gate, so no
	// depends_on is needed.
	month := payload.Month
	if month == "" {
		month = domain.MonthKey(collectedAt.In(a.location))
	}
	_, err = a.queue.Enqueue(ctx, queue.NewJob{
		Kind: domain.JobKindAnalyze,
		Payload: domain.MustPayload(domain.AnalyzePayload{
			AccountID: account.ID,
			Month:     month,
		}),
	})
	if err != nil {
		return fmt.Errorf("enqueue analyze job: %w", err)
	}
	return nil
}

func (a *DataAgent) collectionWindow(ctx context.Context, account domain.Account, payload domain.CollectPayload) (collector.Window, error) {
	if payload.Month != "" {
		start, err := time.Parse("2006-01", payload.Month)
		if err != nil {
			return collector.Window{}, fmt.Errorf("parse month %q: %w", payload.Month, err)
		}
		return collector.Window{Since: start, Until: start.AddDate(0, 1, 0)}, nil
	}

	latest, err := a.store.LatestPostTime(ctx, account.ID)
	if err != nil {
		return collector.Window{}, err
	}
	if latest.IsZero() {
		latest = a.now().Add(-a.defaultWindow)
	}
	return collector.Window{Since: latest, Until: a.now()}, nil
}

func (a *DataAgent) logCollection(ctx context.Context, account domain.Account, startedAt time.Time, collected int, cause error) {
	status := "success"
	message := ""
	if cause != nil {
		status = "failed"
		message = cause.Error()
	}
	log := domain.CollectionLog{
		ID:             uuid.NewString(),
		AccountID:      account.ID,
		Platform:       account.Platform,
		Status:         status,
		PostsCollected: collected,
		Error:          message,
		StartedAt:      startedAt,
		CompletedAt:    a.now().UTC(),
	}
	if err := a.store.AppendCollectionLog(ctx, log); err != nil {
		a.logger.Warn("collection log write failed",
			zap.String("account_id", account.ID), zap.Error(err))
	}
}

// classifyCollectorError maps the adapter taxonomy onto the execution
// protocol: platform pushback and transient faults retry with backoff
// (honoring a platform retry-after hint), permanent faults bury the job.
func classifyCollectorError(err error) error {
	var rateLimited *collector.RateLimitedError
	if errors.As(err, &rateLimited) {
		return &RetriableFailure{Err: err, RetryAfter: rateLimited.RetryAfter}
	}
	var permanent *collector.PermanentError
	if errors.As(err, &permanent) {
		return &PermanentFailure{Err: err}
	}
	return &RetriableFailure{Err: err}
}

func decodePayload(raw []byte, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}
