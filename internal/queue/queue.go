// Package queue defines the durable job queue coordinating distributed
// workers. All cross-worker coordination goes through claim/complete; the
// backing store's row locking is the only coordination primitive.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a job's lifecycle state. Transitions only happen through queue
// operations and are monotonic except running back to pending on
// stale-recovery.
type Status string

// Job lifecycle states.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Job is one queued pipeline run.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	OrgID        string          `json:"org_id"`
	ProjectID    string          `json:"project_id"`
	JobType      string          `json:"job_type"`
	Status       Status          `json:"status"`
	URL          string          `json:"url"`
	Rules        json.RawMessage `json:"rules,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// EnqueueRequest describes a job to insert.
type EnqueueRequest struct {
	OrgID     string
	ProjectID string
	JobType   string
	URL       string
	Rules     json.RawMessage
}

// Validate checks the request's required fields.
func (r EnqueueRequest) Validate() error {
	if r.OrgID == "" {
		return fmt.Errorf("org id is required")
	}
	if r.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if r.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

// Sentinel errors returned by queue operations.
var (
	ErrNotFound      = errors.New("job not found")
	ErrNotCancelable = errors.New("job is not cancelable")
)

// Queue is the durable job queue.
//
// ClaimNext must guarantee that under concurrent callers each pending job is
// claimed by exactly one of them; it returns nil without error when nothing
// is eligible. maxPerTenant caps an org's simultaneously running jobs.
type Queue interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error)
	ClaimNext(ctx context.Context, maxPerTenant int) (*Job, error)
	Complete(ctx context.Context, id uuid.UUID, jobErr error) error
	Cancel(ctx context.Context, id uuid.UUID, orgID string) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	RecoverStaleJobs(ctx context.Context, timeout time.Duration) (int, error)
}
