package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmeijer/socmon/internal/domain"
)

// RedisLimiter keeps the shared counters in Redis so several worker
// processes on the node draw from one budget. Keys are aligned to the
// wall-clock minute and to the local day, with expirations generous
// enough to survive clock skew between processes.
type RedisLimiter struct {
	client   *redis.Client
	budgets  map[domain.Platform]Budget
	location *time.Location
	prefix   string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRedisLimiter(client *redis.Client, budgets map[domain.Platform]Budget, location *time.Location) *RedisLimiter {
	if location == nil {
		location = time.UTC
	}
	return &RedisLimiter{
		client:   client,
		budgets:  budgets,
		location: location,
		prefix:   "socmon:rl",
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func (l *RedisLimiter) Acquire(ctx context.Context, platform domain.Platform) error {
	budget, ok := l.budgets[platform]
	if !ok {
		return fmt.Errorf("no rate budget configured for platform %q", platform)
	}

	for {
		wait, err := l.tryConsume(ctx, platform, budget)
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *RedisLimiter) tryConsume(ctx context.Context, platform domain.Platform, budget Budget) (time.Duration, error) {
	now := l.now().In(l.location)
	minuteStart := now.Truncate(time.Minute)
	dayKey := fmt.Sprintf("%s:%s:d:%s", l.prefix, platform, now.Format("20060102"))
	minuteKey := fmt.Sprintf("%s:%s:m:%d", l.prefix, platform, minuteStart.Unix())

	dayUsed, err := l.incrWithTTL(ctx, dayKey, 48*time.Hour)
	if err != nil {
		return 0, err
	}
	if dayUsed > int64(budget.PerDay) {
		if err := l.client.Decr(ctx, dayKey).Err(); err != nil {
			return 0, fmt.Errorf("release daily slot: %w", err)
		}
		return 0, ErrDailyLimitExhausted
	}

	minuteUsed, err := l.incrWithTTL(ctx, minuteKey, 2*time.Minute)
	if err != nil {
		return 0, err
	}
	if minuteUsed > int64(budget.PerMinute) {
		pipe := l.client.TxPipeline()
		pipe.Decr(ctx, minuteKey)
		pipe.Decr(ctx, dayKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("release minute slot: %w", err)
		}
		return minuteStart.Add(time.Minute).Sub(now), nil
	}
	return 0, nil
}

func (l *RedisLimiter) incrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("consume rate slot: %w", err)
	}
	return incr.Val(), nil
}
