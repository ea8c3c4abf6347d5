// Package agent implements the shared execution protocol of the data,
// analyse and rapport agents: claim a job, run the kind-specific
// handler, classify the outcome, and either complete, retry with
// backoff, reschedule, or bury the job.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/queue"
)

// Handler is the kind-specific half of an agent. Handle reports its
// outcome through the error types below; a plain error is treated as
// retriable.
type Handler interface {
	Name() string
	Kinds() []domain.JobKind
	Handle(ctx context.Context, job *domain.Job) error
}

// PermanentFailure wraps a non-retriable error: the job goes straight
// to dead.
type PermanentFailure struct {
	Err error
}

func (e *PermanentFailure) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentFailure) Unwrap() error { return e.Err }

// RetriableFailure wraps a retriable error. RetryAfter overrides the
// queue's backoff policy when positive (e.g. a platform-provided hint).
type RetriableFailure struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetriableFailure) Error() string { return fmt.Sprintf("retriable: %v", e.Err) }
func (e *RetriableFailure) Unwrap() error { return e.Err }

// RescheduleJob signals an expected operational condition, not a
// failure: the job returns to pending at the given time without
// consuming an attempt.
type RescheduleJob struct {
	At     time.Time
	Reason string
}

func (e *RescheduleJob) Error() string {
	return fmt.Sprintf("reschedule to %s: %s", e.At.Format(time.RFC3339), e.Reason)
}

// Runner polls the queue for the handler's kinds and executes claims.
type Runner struct {
	queue        queue.Queue
	handler      Handler
	logger       *zap.Logger
	pollInterval time.Duration
}

func NewRunner(q queue.Queue, handler Handler, logger *zap.Logger, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Runner{
		queue:        q,
		handler:      handler,
		logger:       logger.Named(handler.Name()),
		pollInterval: pollInterval,
	}
}

// Run loops until ctx is canceled. No eligible work is a normal state:
// the runner idles a poll interval and tries again.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("agent started", zap.Any("kinds", r.handler.Kinds()))
	for {
		if ctx.Err() != nil {
			r.logger.Info("agent stopped")
			return ctx.Err()
		}

		processed, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("agent iteration failed", zap.Error(err))
		}
		if processed {
			continue
		}

		timer := time.NewTimer(r.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("agent stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a
// job was claimed; errors concern queue plumbing, never the job's own
// outcome, which is recorded on the job itself.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.queue.Claim(ctx, r.handler.Kinds())
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log := r.logger.With(
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", job.Attempts),
	)

	// The payload was validated at enqueue time; re-check here so a
	// drifted row fails closed instead of reaching the handler.
	if err := domain.ValidatePayload(job.Kind, job.Payload); err != nil {
		log.Warn("claimed job has invalid payload", zap.Error(err))
		if failErr := r.queue.Fail(ctx, job.ID, err, false, 0); failErr != nil {
			return true, fmt.Errorf("fail invalid job: %w", failErr)
		}
		return true, nil
	}

	handleErr := r.handler.Handle(ctx, job)
	if handleErr == nil {
		if err := r.queue.Complete(ctx, job.ID); err != nil {
			return true, fmt.Errorf("complete job: %w", err)
		}
		log.Info("job succeeded")
		return true, nil
	}

	var reschedule *RescheduleJob
	if errors.As(handleErr, &reschedule) {
		log.Info("job rescheduled",
			zap.Time("available_at", reschedule.At),
			zap.String("reason", reschedule.Reason))
		if err := r.queue.Reschedule(ctx, job.ID, reschedule.At); err != nil {
			return true, fmt.Errorf("reschedule job: %w", err)
		}
		return true, nil
	}

	var permanent *PermanentFailure
	if errors.As(handleErr, &permanent) {
		log.Error("job failed permanently", zap.Error(permanent.Err))
		if err := r.queue.Fail(ctx, job.ID, permanent.Err, false, 0); err != nil {
			return true, fmt.Errorf("fail job: %w", err)
		}
		return true, nil
	}

	retryAfter := time.Duration(0)
	cause := handleErr
	var retriable *RetriableFailure
	if errors.As(handleErr, &retriable) {
		retryAfter = retriable.RetryAfter
		cause = retriable.Err
	}
	log.Warn("job failed, may retry", zap.Error(cause))
	if err := r.queue.Fail(ctx, job.ID, cause, true, retryAfter); err != nil {
		return true, fmt.Errorf("fail job: %w", err)
	}
	return true, nil
}
