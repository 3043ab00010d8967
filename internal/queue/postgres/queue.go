// Package postgres implements the job queue on Postgres. Claiming uses
// FOR UPDATE SKIP LOCKED inside a single short transaction, so concurrent
// workers pull distinct rows without blocking each other.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skyhookqa/skyhook/internal/queue"
)

// Schema creates the jobs table. Applied at startup via EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id UUID PRIMARY KEY,
	org_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	url TEXT NOT NULL,
	rules JSONB,
	error_message TEXT,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS jobs_status_created_idx ON jobs (status, created_at);
CREATE INDEX IF NOT EXISTS jobs_org_status_idx ON jobs (org_id, status);
`

const jobColumns = `id, org_id, project_id, job_type, status, url, rules, error_message, started_at, finished_at, created_at`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobQueue is the Postgres-backed queue.
type JobQueue struct {
	pool dbPool
}

// New connects a pool and returns the queue.
func New(ctx context.Context, cfg Config) (*JobQueue, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobQueue{pool: pool}, nil
}

// NewWithPool constructs a queue from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*JobQueue, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobQueue{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (q *JobQueue) Close() {
	if q == nil || q.pool == nil {
		return
	}
	q.pool.Close()
}

// EnsureSchema applies the jobs table schema.
func (q *JobQueue) EnsureSchema(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply jobs schema: %w", err)
	}
	return nil
}

// Enqueue inserts a pending job row and returns it.
func (q *JobQueue) Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	jobType := req.JobType
	if jobType == "" {
		jobType = "pipeline"
	}
	job := &queue.Job{
		ID:        uuid.New(),
		OrgID:     req.OrgID,
		ProjectID: req.ProjectID,
		JobType:   jobType,
		Status:    queue.StatusPending,
		URL:       req.URL,
		Rules:     req.Rules,
		CreatedAt: time.Now().UTC(),
	}
	_, err := q.pool.Exec(ctx, `
INSERT INTO jobs (id, org_id, project_id, job_type, status, url, rules, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.OrgID, job.ProjectID, job.JobType, string(job.Status), job.URL, job.Rules, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically claims the oldest eligible pending job. The SELECT and
// the transition to running share one transaction; SKIP LOCKED makes
// concurrent claimers pass over rows another transaction holds.
func (q *JobQueue) ClaimNext(ctx context.Context, maxPerTenant int) (*queue.Job, error) {
	if maxPerTenant <= 0 {
		maxPerTenant = 1
	}
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}

	row := tx.QueryRow(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE status = 'pending'
  AND (SELECT count(*) FROM jobs r WHERE r.org_id = jobs.org_id AND r.status = 'running') < $1
ORDER BY created_at
FOR UPDATE OF jobs SKIP LOCKED
LIMIT 1`, maxPerTenant)

	job, err := scanJob(row)
	if err != nil {
		_ = tx.Rollback(ctx)
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("select claimable job: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE jobs SET status = 'running', started_at = $2 WHERE id = $1`,
		job.ID, now,
	); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	job.Status = queue.StatusRunning
	job.StartedAt = &now
	return job, nil
}

// Complete transitions a running job to its terminal state.
func (q *JobQueue) Complete(ctx context.Context, id uuid.UUID, jobErr error) error {
	status := queue.StatusCompleted
	msg := ""
	if jobErr != nil {
		status = queue.StatusFailed
		msg = jobErr.Error()
	}
	tag, err := q.pool.Exec(ctx, `
UPDATE jobs SET status = $2, error_message = NULLIF($3, ''), finished_at = $4
WHERE id = $1 AND status = 'running'`,
		id, string(status), msg, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotFound
	}
	return nil
}

// Cancel marks a pending job canceled. Running jobs cannot be preempted.
func (q *JobQueue) Cancel(ctx context.Context, id uuid.UUID, orgID string) error {
	tag, err := q.pool.Exec(ctx, `
UPDATE jobs SET status = 'canceled', finished_at = $3
WHERE id = $1 AND org_id = $2 AND status = 'pending'`,
		id, orgID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotCancelable
	}
	return nil
}

// Get fetches one job by id.
func (q *JobQueue) Get(ctx context.Context, id uuid.UUID) (*queue.Job, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, queue.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// RecoverStaleJobs resets running jobs whose start time exceeds the timeout
// back to pending, clearing the start timestamp.
func (q *JobQueue) RecoverStaleJobs(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	tag, err := q.pool.Exec(ctx, `
UPDATE jobs SET status = 'pending', started_at = NULL
WHERE status = 'running' AND started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		job    queue.Job
		status string
		errMsg *string
	)
	err := row.Scan(
		&job.ID, &job.OrgID, &job.ProjectID, &job.JobType, &status, &job.URL,
		&job.Rules, &errMsg, &job.StartedAt, &job.FinishedAt, &job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = queue.Status(status)
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	return &job, nil
}
