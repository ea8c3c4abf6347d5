// Package queue implements the durable job queue that coordinates the
// collection, analysis and reporting agents. Claiming a job is an atomic
// pending→running transition granting exclusive execution rights; all
// long-running work happens after the claim, never under its lock.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/jmeijer/socmon/internal/domain"
)

var (
	// ErrInvalidTransition is returned when a state change is requested
	// from a state the job is not in (e.g. completing a pending job).
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrNotFound is returned when the referenced job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrUnknownDependency is returned at enqueue time when depends_on
	// references a job that was never created. Forward references would
	// gate a job on nothing and are rejected outright.
	ErrUnknownDependency = errors.New("depends_on references unknown job")
)

// NewJob describes a job to enqueue. DependsOn, when set, must name an
// existing job; the new job only becomes claimable once that job has
// succeeded. AvailableAt zero means immediately claimable.
type NewJob struct {
	Kind        domain.JobKind
	Payload     []byte
	DependsOn   string
	AvailableAt time.Time
}

// Snapshot holds per-(kind, state) job counts for operator visibility.
type Snapshot map[domain.JobKind]map[domain.JobState]int

func (s Snapshot) Count(kind domain.JobKind, state domain.JobState) int {
	return s[kind][state]
}

// Total sums all counts for the given states, or everything when no
// state is given.
func (s Snapshot) Total(states ...domain.JobState) int {
	total := 0
	for _, byState := range s {
		if len(states) == 0 {
			for _, n := range byState {
				total += n
			}
			continue
		}
		for _, state := range states {
			total += byState[state]
		}
	}
	return total
}

// Queue is the durable store of work items.
//
// Selection policy for Claim: among eligible pending jobs (available_at
// due, dependency succeeded) the oldest available_at wins, ties broken by
// id ascending. Claim returns (nil, nil) when nothing is eligible; that
// is a normal outcome, not an error.
type Queue interface {
	// Enqueue validates the payload against the kind's schema and
	// persists a new pending job, returning its id.
	Enqueue(ctx context.Context, job NewJob) (string, error)

	// EnqueueBatch persists several jobs in one round trip. Validation
	// failures reject the whole batch.
	EnqueueBatch(ctx context.Context, jobs []NewJob) ([]string, error)

	// Claim atomically selects one eligible job among the given kinds,
	// transitions it to running and increments attempts. Concurrent
	// callers never receive the same job.
	Claim(ctx context.Context, kinds []domain.JobKind) (*domain.Job, error)

	// Complete transitions running → succeeded.
	Complete(ctx context.Context, jobID string) error

	// Fail records the error and either returns the job to pending with
	// a backoff delay (retriable, attempts below the max) or moves it to
	// dead. retryAfter overrides the backoff policy when positive; zero
	// means the policy decides.
	Fail(ctx context.Context, jobID string, cause error, retriable bool, retryAfter time.Duration) error

	// Reschedule returns a running job to pending at the given time
	// without counting the attempt. Used for expected operational
	// conditions such as an exhausted daily rate budget.
	Reschedule(ctx context.Context, jobID string, at time.Time) error

	// Get loads one job by id.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// StatusSnapshot returns per-(kind, state) counts.
	StatusSnapshot(ctx context.Context) (Snapshot, error)

	// ReapStalled returns jobs stuck running for longer than stallAfter
	// to pending so a crashed worker cannot strand them. Reaped attempts
	// still count toward the max.
	ReapStalled(ctx context.Context, stallAfter time.Duration) (int, error)

	// Cleanup deletes terminal jobs past their retention. Dead jobs get
	// their own, longer retention so operators can inspect them.
	Cleanup(ctx context.Context, succeededRetention, deadRetention time.Duration) (int, error)
}

// Options tunes queue behavior shared by all backends.
type Options struct {
	// MaxAttempts bounds execution attempts before a retriable failure
	// turns terminal. Zero falls back to 3.
	MaxAttempts int

	// Backoff computes the retry delay from the attempt count just
	// consumed. Nil falls back to a 30s base exponential policy.
	Backoff func(attempt int) time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff == nil {
		o.Backoff = func(attempt int) time.Duration {
			d := 30 * time.Second
			for i := 1; i < attempt; i++ {
				d *= 2
				if d >= 15*time.Minute {
					return 15 * time.Minute
				}
			}
			return d
		}
	}
	return o
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	return msg
}
