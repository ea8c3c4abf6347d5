package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmeijer/socmon/internal/domain"
)

// PostgresQueue persists jobs in Postgres. Claims rely on
// FOR UPDATE SKIP LOCKED so concurrent workers select disjoint jobs
// without ever blocking each other on the same row.
type PostgresQueue struct {
	pool *pgxpool.Pool
	opts Options
}

func NewPostgresQueue(pool *pgxpool.Pool, opts Options) *PostgresQueue {
	return &PostgresQueue{pool: pool, opts: opts.withDefaults()}
}

const jobColumns = `id, kind, payload, state, attempts, available_at, depends_on, last_error, created_at, updated_at`

func (q *PostgresQueue) Enqueue(ctx context.Context, job NewJob) (string, error) {
	ids, err := q.EnqueueBatch(ctx, []NewJob{job})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (q *PostgresQueue) EnqueueBatch(ctx context.Context, jobs []NewJob) ([]string, error) {
	for _, job := range jobs {
		if err := domain.ValidatePayload(job.Kind, job.Payload); err != nil {
			return nil, err
		}
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.DependsOn != "" {
			var exists bool
			err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, job.DependsOn).Scan(&exists)
			if err != nil {
				return nil, fmt.Errorf("check dependency: %w", err)
			}
			if !exists {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDependency, job.DependsOn)
			}
		}

		availableAt := job.AvailableAt
		if availableAt.IsZero() {
			availableAt = now
		}
		id := uuid.NewString()
		_, err = tx.Exec(ctx, `
			INSERT INTO jobs (id, kind, payload, state, attempts, available_at, depends_on, last_error, created_at, updated_at)
			VALUES ($1, $2, $3, 'pending', 0, $4, NULLIF($5, ''), '', $6, $6)
		`, id, string(job.Kind), job.Payload, availableAt.UTC(), job.DependsOn, now)
		if err != nil {
			return nil, fmt.Errorf("insert job: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit enqueue tx: %w", err)
	}
	return ids, nil
}

func (q *PostgresQueue) Claim(ctx context.Context, kinds []domain.JobKind) (*domain.Job, error) {
	kindValues := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		kindValues = append(kindValues, string(kind))
	}

	row := q.pool.QueryRow(ctx, `
		WITH eligible AS (
			SELECT j.id
			FROM jobs j
			LEFT JOIN jobs dep ON dep.id = j.depends_on
			WHERE j.state = 'pending'
			  AND j.kind = ANY($1)
			  AND j.available_at <= now()
			  AND (j.depends_on IS NULL OR dep.state = 'succeeded')
			ORDER BY j.available_at ASC, j.id ASC
			FOR UPDATE OF j SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs
		SET state = 'running', attempts = attempts + 1, updated_at = now()
		WHERE id IN (SELECT id FROM eligible)
		RETURNING `+jobColumns,
		kindValues)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'succeeded', last_error = '', updated_at = now()
		WHERE id = $1 AND state = 'running'
	`, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return q.transitionError(ctx, jobID, "complete")
	}
	return nil
}

func (q *PostgresQueue) Fail(ctx context.Context, jobID string, cause error, retriable bool, retryAfter time.Duration) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var state string
	var attempts int
	err = tx.QueryRow(ctx, `SELECT state, attempts FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&state, &attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return fmt.Errorf("load job for fail: %w", err)
	}
	if domain.JobState(state) != domain.JobStateRunning {
		return fmt.Errorf("%w: fail needs running, job %s is %s", ErrInvalidTransition, jobID, state)
	}

	message := truncateError(cause)
	if retriable && attempts < q.opts.MaxAttempts {
		delay := retryAfter
		if delay <= 0 {
			delay = q.opts.Backoff(attempts)
		}
		_, err = tx.Exec(ctx, `
			UPDATE jobs
			SET state = 'pending', available_at = now() + $2, last_error = $3, updated_at = now()
			WHERE id = $1
		`, jobID, delay, message)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE jobs
			SET state = 'dead', last_error = $2, updated_at = now()
			WHERE id = $1
		`, jobID, message)
	}
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return tx.Commit(ctx)
}

func (q *PostgresQueue) Reschedule(ctx context.Context, jobID string, at time.Time) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'pending', attempts = attempts - 1, available_at = $2, updated_at = now()
		WHERE id = $1 AND state = 'running'
	`, jobID, at.UTC())
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return q.transitionError(ctx, jobID, "reschedule")
	}
	return nil
}

func (q *PostgresQueue) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (q *PostgresQueue) StatusSnapshot(ctx context.Context) (Snapshot, error) {
	rows, err := q.pool.Query(ctx, `SELECT kind, state, COUNT(*) FROM jobs GROUP BY kind, state`)
	if err != nil {
		return nil, fmt.Errorf("status snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(Snapshot)
	for rows.Next() {
		var kind, state string
		var count int
		if err := rows.Scan(&kind, &state, &count); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		byState, ok := snapshot[domain.JobKind(kind)]
		if !ok {
			byState = make(map[domain.JobState]int)
			snapshot[domain.JobKind(kind)] = byState
		}
		byState[domain.JobState(state)] = count
	}
	return snapshot, rows.Err()
}

func (q *PostgresQueue) ReapStalled(ctx context.Context, stallAfter time.Duration) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'pending', available_at = now(), last_error = 'reclaimed after stall', updated_at = now()
		WHERE state = 'running' AND updated_at < now() - $1
	`, stallAfter)
	if err != nil {
		return 0, fmt.Errorf("reap stalled jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (q *PostgresQueue) Cleanup(ctx context.Context, succeededRetention, deadRetention time.Duration) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE (state = 'succeeded' AND updated_at < now() - $1)
		   OR (state = 'dead' AND updated_at < now() - $2)
	`, succeededRetention, deadRetention)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (q *PostgresQueue) transitionError(ctx context.Context, jobID, op string) error {
	var state string
	err := q.pool.QueryRow(ctx, `SELECT state FROM jobs WHERE id = $1`, jobID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return fmt.Errorf("inspect job state: %w", err)
	}
	return fmt.Errorf("%w: %s needs running, job %s is %s", ErrInvalidTransition, op, jobID, state)
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job       domain.Job
		kind      string
		state     string
		dependsOn *string
	)
	err := row.Scan(
		&job.ID,
		&kind,
		&job.Payload,
		&state,
		&job.Attempts,
		&job.AvailableAt,
		&dependsOn,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.State = domain.JobState(state)
	if dependsOn != nil {
		job.DependsOn = *dependsOn
	}
	return &job, nil
}
