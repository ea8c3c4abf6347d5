package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmeijer/socmon/internal/domain"
)

// MemoryQueue keeps jobs in memory behind a single mutex. It is the
// development fallback when Postgres is not configured and the backend
// used by most tests; the mutex is the serialization point that makes
// claim-and-transition atomic.
type MemoryQueue struct {
	opts Options

	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts: opts.withDefaults(),
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// setNow swaps the clock; tests only.
func (q *MemoryQueue) setNow(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job NewJob) (string, error) {
	ids, err := q.EnqueueBatch(ctx, []NewJob{job})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (q *MemoryQueue) EnqueueBatch(_ context.Context, jobs []NewJob) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range jobs {
		if err := domain.ValidatePayload(job.Kind, job.Payload); err != nil {
			return nil, err
		}
		if job.DependsOn != "" {
			if _, ok := q.jobs[job.DependsOn]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDependency, job.DependsOn)
			}
		}
	}

	now := q.now().UTC()
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		availableAt := job.AvailableAt
		if availableAt.IsZero() {
			availableAt = now
		}
		created := &domain.Job{
			ID:          uuid.NewString(),
			Kind:        job.Kind,
			Payload:     append([]byte(nil), job.Payload...),
			State:       domain.JobStatePending,
			AvailableAt: availableAt.UTC(),
			DependsOn:   job.DependsOn,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		q.jobs[created.ID] = created
		ids = append(ids, created.ID)
	}
	return ids, nil
}

func (q *MemoryQueue) Claim(_ context.Context, kinds []domain.JobKind) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	var best *domain.Job
	for _, job := range q.jobs {
		if job.State != domain.JobStatePending || job.AvailableAt.After(now) {
			continue
		}
		if !kindIn(job.Kind, kinds) {
			continue
		}
		if job.DependsOn != "" {
			dep, ok := q.jobs[job.DependsOn]
			if !ok || dep.State != domain.JobStateSucceeded {
				continue
			}
		}
		if best == nil || claimBefore(job, best) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}

	best.State = domain.JobStateRunning
	best.Attempts++
	best.UpdatedAt = now
	return cloneJob(best), nil
}

func (q *MemoryQueue) Complete(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if job.State != domain.JobStateRunning {
		return fmt.Errorf("%w: complete needs running, job %s is %s", ErrInvalidTransition, jobID, job.State)
	}
	job.State = domain.JobStateSucceeded
	job.LastError = ""
	job.UpdatedAt = q.now().UTC()
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, jobID string, cause error, retriable bool, retryAfter time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if job.State != domain.JobStateRunning {
		return fmt.Errorf("%w: fail needs running, job %s is %s", ErrInvalidTransition, jobID, job.State)
	}

	now := q.now().UTC()
	job.LastError = truncateError(cause)
	job.UpdatedAt = now

	if retriable && job.Attempts < q.opts.MaxAttempts {
		delay := retryAfter
		if delay <= 0 {
			delay = q.opts.Backoff(job.Attempts)
		}
		job.State = domain.JobStatePending
		job.AvailableAt = now.Add(delay)
		return nil
	}
	job.State = domain.JobStateDead
	return nil
}

func (q *MemoryQueue) Reschedule(_ context.Context, jobID string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if job.State != domain.JobStateRunning {
		return fmt.Errorf("%w: reschedule needs running, job %s is %s", ErrInvalidTransition, jobID, job.State)
	}

	// The attempt did not run any work, so give it back.
	job.State = domain.JobStatePending
	job.Attempts--
	job.AvailableAt = at.UTC()
	job.UpdatedAt = q.now().UTC()
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, jobID string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return cloneJob(job), nil
}

func (q *MemoryQueue) StatusSnapshot(_ context.Context) (Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make(Snapshot)
	for _, job := range q.jobs {
		byState, ok := snapshot[job.Kind]
		if !ok {
			byState = make(map[domain.JobState]int)
			snapshot[job.Kind] = byState
		}
		byState[job.State]++
	}
	return snapshot, nil
}

func (q *MemoryQueue) ReapStalled(_ context.Context, stallAfter time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	cutoff := now.Add(-stallAfter)
	reaped := 0
	for _, job := range q.jobs {
		if job.State != domain.JobStateRunning || job.UpdatedAt.After(cutoff) {
			continue
		}
		job.State = domain.JobStatePending
		job.AvailableAt = now
		job.LastError = "reclaimed after stall"
		job.UpdatedAt = now
		reaped++
	}
	return reaped, nil
}

func (q *MemoryQueue) Cleanup(_ context.Context, succeededRetention, deadRetention time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	removed := make(map[string]bool)
	for id, job := range q.jobs {
		var retention time.Duration
		switch job.State {
		case domain.JobStateSucceeded:
			retention = succeededRetention
		case domain.JobStateDead:
			retention = deadRetention
		default:
			continue
		}
		if job.UpdatedAt.Before(now.Add(-retention)) {
			delete(q.jobs, id)
			removed[id] = true
		}
	}

	// Dependents of a collected parent are unblocked, mirroring the
	// ON DELETE SET NULL on the jobs table.
	if len(removed) > 0 {
		for _, job := range q.jobs {
			if job.DependsOn != "" && removed[job.DependsOn] {
				job.DependsOn = ""
			}
		}
	}
	return len(removed), nil
}

// claimBefore implements the selection order: oldest available_at first,
// ties broken by id ascending for determinism.
func claimBefore(a, b *domain.Job) bool {
	if !a.AvailableAt.Equal(b.AvailableAt) {
		return a.AvailableAt.Before(b.AvailableAt)
	}
	return a.ID < b.ID
}

func kindIn(kind domain.JobKind, kinds []domain.JobKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func cloneJob(job *domain.Job) *domain.Job {
	clone := *job
	clone.Payload = append([]byte(nil), job.Payload...)
	return &clone
}
