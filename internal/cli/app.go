// Package cli wires the application together and exposes the command
// surface of the socmon binary.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmeijer/socmon/internal/agent"
	"github.com/jmeijer/socmon/internal/analysis"
	"github.com/jmeijer/socmon/internal/collector"
	"github.com/jmeijer/socmon/internal/config"
	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/httpapi"
	"github.com/jmeijer/socmon/internal/orchestrator"
	"github.com/jmeijer/socmon/internal/queue"
	"github.com/jmeijer/socmon/internal/ratelimit"
	"github.com/jmeijer/socmon/internal/report"
	"github.com/jmeijer/socmon/internal/store"
)

// app holds every wired component for one command invocation.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	location *time.Location

	queue      queue.Queue
	store      store.Store
	limiter    ratelimit.Limiter
	collectors *collector.Registry
	sink       report.Sink
	feed       *report.Feed
	orch       *orchestrator.Orchestrator

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, location: location}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	pool, err := a.setupPostgres(ctx)
	if err != nil {
		return nil, err
	}

	backoff := ratelimit.BackoffPolicy{
		Base:   cfg.BackoffBase,
		Max:    cfg.BackoffCap,
		Jitter: 0.2,
	}
	queueOpts := queue.Options{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     backoff.Delay,
	}
	if pool != nil {
		a.queue = queue.NewPostgresQueue(pool, queueOpts)
		a.store = store.NewPostgresStore(pool)
	} else {
		logger.Info("POSTGRES_DSN not configured, using in-memory queue and store")
		a.queue = queue.NewMemoryQueue(queueOpts)
		a.store = store.NewMemoryStore()
	}

	a.limiter = a.setupLimiter()
	a.collectors = collector.NewRegistry()
	a.sink = a.setupSink()
	a.feed = report.NewFeed(a.store)
	a.orch = orchestrator.New(a.queue, a.store, logger, orchestrator.Options{
		Workers:            cfg.Workers,
		PollInterval:       cfg.PollInterval,
		StallAfter:         cfg.StallAfter,
		MaintenanceEvery:   cfg.MaintenanceEvery,
		SucceededRetention: cfg.SucceededRetention,
		DeadRetention:      cfg.DeadRetention,
		Location:           location,
	})
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) setupPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.cfg.PostgresDSN == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.logger.Info("postgres connected")
	return pool, nil
}

func (a *app) setupLimiter() ratelimit.Limiter {
	budgets := a.budgets()
	if a.cfg.RedisAddr == "" {
		a.logger.Info("REDIS_ADDR not configured, using in-process rate limiter")
		return ratelimit.NewMemoryLimiter(budgets, a.location)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.logger.Info("redis rate limiter initialized", zap.String("addr", a.cfg.RedisAddr))
	return ratelimit.NewRedisLimiter(client, budgets, a.location)
}

func (a *app) budgets() map[domain.Platform]ratelimit.Budget {
	budgets := ratelimit.DefaultBudgets()
	apply := func(p domain.Platform, perMinute, perDay int) {
		b := budgets[p]
		if perMinute > 0 {
			b.PerMinute = perMinute
		}
		if perDay > 0 {
			b.PerDay = perDay
		}
		budgets[p] = b
	}
	apply(domain.PlatformInstagram, a.cfg.InstagramPerMinute, a.cfg.InstagramPerDay)
	apply(domain.PlatformFacebook, a.cfg.FacebookPerMinute, a.cfg.FacebookPerDay)
	apply(domain.PlatformTwitter, a.cfg.TwitterPerMinute, a.cfg.TwitterPerDay)
	return budgets
}

func (a *app) setupSink() report.Sink {
	if a.cfg.S3Endpoint == "" {
		return report.LocalSink{Dir: a.cfg.ExportDir}
	}
	sink, err := report.NewObjectSink(report.ObjectSinkConfig{
		Endpoint:  a.cfg.S3Endpoint,
		AccessKey: a.cfg.S3AccessKey,
		SecretKey: a.cfg.S3SecretKey,
		Bucket:    a.cfg.S3Bucket,
		UseSSL:    a.cfg.S3UseSSL,
	})
	if err != nil {
		a.logger.Warn("object storage unavailable, falling back to local exports", zap.Error(err))
		return report.LocalSink{Dir: a.cfg.ExportDir}
	}
	a.logger.Info("object storage sink initialized", zap.String("bucket", a.cfg.S3Bucket))
	return sink
}

// handlers builds one of each agent, wrapping every registered
// collector in a circuit breaker.
func (a *app) handlers() []agent.Handler {
	for _, platform := range a.collectors.Platforms() {
		c, err := a.collectors.Get(platform)
		if err != nil {
			continue
		}
		a.collectors.Register(platform, collector.WithBreaker(string(platform), c))
	}

	data := agent.NewDataAgent(agent.DataAgentConfig{
		Queue:      a.queue,
		Store:      a.store,
		Collectors: a.collectors,
		Limiter:    a.limiter,
		Logger:     a.logger,
		Location:   a.location,
	})
	analyse := agent.NewAnalyseAgent(a.store, analysis.NewEngagementCalculator())
	rapport := agent.NewRapportAgent(a.feed, agent.DefaultRenderers(), a.sink, a.logger)
	return []agent.Handler{data, analyse, rapport}
}

// setWorkers rebuilds the orchestrator with a different runner count.
func (a *app) setWorkers(workers int) {
	if workers <= 0 {
		return
	}
	a.cfg.Workers = workers
	a.orch = orchestrator.New(a.queue, a.store, a.logger, orchestrator.Options{
		Workers:            workers,
		PollInterval:       a.cfg.PollInterval,
		StallAfter:         a.cfg.StallAfter,
		MaintenanceEvery:   a.cfg.MaintenanceEvery,
		SucceededRetention: a.cfg.SucceededRetention,
		DeadRetention:      a.cfg.DeadRetention,
		Location:           a.location,
	})
}

func (a *app) serveHTTP(ctx context.Context) error {
	server := httpapi.NewServer(a.orch, a.feed, a.logger)
	return server.Serve(ctx, a.cfg.HTTPAddr)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.AppEnv == "development" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
	}
	return zcfg.Build()
}
