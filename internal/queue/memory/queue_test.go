package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyhookqa/skyhook/internal/queue"
)

func enqueue(t *testing.T, q *JobQueue, org string) *queue.Job {
	t.Helper()
	job, err := q.Enqueue(context.Background(), queue.EnqueueRequest{
		OrgID:     org,
		ProjectID: "proj-1",
		URL:       "https://example.com",
	})
	require.NoError(t, err)
	return job
}

func TestClaimNextFIFO(t *testing.T) {
	q := New()
	first := enqueue(t, q, "org-1")
	enqueue(t, q, "org-1")

	claimed, err := q.ClaimNext(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, queue.StatusRunning, claimed.Status)
	require.NotNil(t, claimed.StartedAt)
}

func TestClaimNextRespectsTenantCap(t *testing.T) {
	q := New()
	enqueue(t, q, "org-1")
	enqueue(t, q, "org-1")
	other := enqueue(t, q, "org-2")

	_, err := q.ClaimNext(context.Background(), 1)
	require.NoError(t, err)

	// org-1 is at its cap; the next claim skips to org-2.
	claimed, err := q.ClaimNext(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, other.ID, claimed.ID)

	claimed, err = q.ClaimNext(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimNextSingleWinner(t *testing.T) {
	q := New()
	job := enqueue(t, q, "org-1")

	const callers = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []uuid.UUID
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := q.ClaimNext(context.Background(), 1)
			require.NoError(t, err)
			if claimed != nil {
				mu.Lock()
				wins = append(wins, claimed.ID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, job.ID, wins[0])
}

func TestCompleteTransitions(t *testing.T) {
	q := New()
	job := enqueue(t, q, "org-1")

	// Completing a pending job is invalid.
	assert.ErrorIs(t, q.Complete(context.Background(), job.ID, nil), queue.ErrNotFound)

	claimed, err := q.ClaimNext(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, q.Complete(context.Background(), claimed.ID, errors.New("run stage: 3 cases failed")))

	got, err := q.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, got.Status)
	assert.Equal(t, "run stage: 3 cases failed", got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)
}

func TestCancelOnlyPending(t *testing.T) {
	q := New()
	job := enqueue(t, q, "org-1")

	assert.ErrorIs(t, q.Cancel(context.Background(), job.ID, "other-org"), queue.ErrNotCancelable)
	require.NoError(t, q.Cancel(context.Background(), job.ID, "org-1"))

	got, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCanceled, got.Status)

	// A running job cannot be preempted.
	running := enqueue(t, q, "org-1")
	_, err = q.ClaimNext(context.Background(), 1)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Cancel(context.Background(), running.ID, "org-1"), queue.ErrNotCancelable)
}

func TestRecoverStaleJobs(t *testing.T) {
	q := New()
	enqueue(t, q, "org-1")

	claimed, err := q.ClaimNext(context.Background(), 1)
	require.NoError(t, err)

	// Fresh running jobs stay untouched.
	n, err := q.RecoverStaleJobs(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Backdate the start time past the threshold.
	q.mu.Lock()
	stale := time.Now().UTC().Add(-20 * time.Minute)
	q.jobs[claimed.ID].StartedAt = &stale
	q.mu.Unlock()

	n, err = q.RecoverStaleJobs(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, got.Status)
	assert.Nil(t, got.StartedAt)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, queue.StatusPending.Valid())
	assert.False(t, queue.Status("paused").Valid())
	assert.True(t, queue.StatusFailed.Terminal())
	assert.False(t, queue.StatusRunning.Terminal())
}
