// Package memory implements the job queue in process memory behind a mutex.
// It substitutes the row-locking store for tests and single-process runs;
// its guarantees do not span worker processes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skyhookqa/skyhook/internal/queue"
)

// JobQueue is the in-memory queue.
type JobQueue struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*queue.Job
	// order preserves enqueue order for FIFO claiming.
	order []uuid.UUID
}

// New returns an empty queue.
func New() *JobQueue {
	return &JobQueue{jobs: make(map[uuid.UUID]*queue.Job)}
}

// Enqueue inserts a pending job.
func (q *JobQueue) Enqueue(_ context.Context, req queue.EnqueueRequest) (*queue.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
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

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.mu.Unlock()

	copied := *job
	return &copied, nil
}

// ClaimNext claims the oldest pending job whose tenant is under the cap.
// The mutex makes the select-and-transition atomic, so concurrent callers
// never claim the same job.
func (q *JobQueue) ClaimNext(_ context.Context, maxPerTenant int) (*queue.Job, error) {
	if maxPerTenant <= 0 {
		maxPerTenant = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	running := make(map[string]int)
	for _, job := range q.jobs {
		if job.Status == queue.StatusRunning {
			running[job.OrgID]++
		}
	}
	for _, id := range q.order {
		job := q.jobs[id]
		if job.Status != queue.StatusPending {
			continue
		}
		if running[job.OrgID] >= maxPerTenant {
			continue
		}
		now := time.Now().UTC()
		job.Status = queue.StatusRunning
		job.StartedAt = &now
		copied := *job
		return &copied, nil
	}
	return nil, nil
}

// Complete transitions a running job to completed or failed.
func (q *JobQueue) Complete(_ context.Context, id uuid.UUID, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status != queue.StatusRunning {
		return queue.ErrNotFound
	}
	now := time.Now().UTC()
	job.FinishedAt = &now
	if jobErr != nil {
		job.Status = queue.StatusFailed
		job.ErrorMessage = jobErr.Error()
	} else {
		job.Status = queue.StatusCompleted
	}
	return nil
}

// Cancel marks a pending job canceled.
func (q *JobQueue) Cancel(_ context.Context, id uuid.UUID, orgID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.OrgID != orgID || job.Status != queue.StatusPending {
		return queue.ErrNotCancelable
	}
	now := time.Now().UTC()
	job.Status = queue.StatusCanceled
	job.FinishedAt = &now
	return nil
}

// Get fetches one job by id.
func (q *JobQueue) Get(_ context.Context, id uuid.UUID) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, queue.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

// RecoverStaleJobs resets timed-out running jobs to pending.
func (q *JobQueue) RecoverStaleJobs(_ context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	recovered := 0
	for _, job := range q.jobs {
		if job.Status == queue.StatusRunning && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			job.Status = queue.StatusPending
			job.StartedAt = nil
			recovered++
		}
	}
	return recovered, nil
}
