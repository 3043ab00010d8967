package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyhookqa/skyhook/internal/queue"
	"github.com/skyhookqa/skyhook/internal/queue/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.JobQueue) {
	t.Helper()
	q := memory.New()
	return NewServer(q, nil), q
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSubmitJob(t *testing.T) {
	s, q := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/jobs/", map[string]any{
		"org_id":     "org-1",
		"project_id": "proj-1",
		"url":        "https://example.com",
		"rules":      map[string]any{"max_depth": 2},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job queue.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	assert.Equal(t, queue.StatusPending, job.Status)

	stored, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", stored.URL)
}

func TestSubmitJobValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/jobs/", map[string]any{"org_id": "org-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", bytes.NewBufferString("{not json"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	s, q := newTestServer(t)
	job, err := q.Enqueue(context.Background(), queue.EnqueueRequest{
		OrgID: "org-1", ProjectID: "proj-1", URL: "https://example.com",
	})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/v1/jobs/"+job.ID.String()+"/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got queue.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, job.ID, got.ID)
}

func TestGetJobNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/jobs/00000000-0000-0000-0000-000000000001/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/v1/jobs/not-a-uuid/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	s, q := newTestServer(t)
	job, err := q.Enqueue(context.Background(), queue.EnqueueRequest{
		OrgID: "org-1", ProjectID: "proj-1", URL: "https://example.com",
	})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodPost, "/v1/jobs/"+job.ID.String()+"/cancel", map[string]string{"org_id": "org-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCanceled, got.Status)

	// Canceled jobs cannot be canceled again.
	rec = doJSON(t, s, http.MethodPost, "/v1/jobs/"+job.ID.String()+"/cancel", map[string]string{"org_id": "org-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelJobRequiresOrg(t *testing.T) {
	s, q := newTestServer(t)
	job, err := q.Enqueue(context.Background(), queue.EnqueueRequest{
		OrgID: "org-1", ProjectID: "proj-1", URL: "https://example.com",
	})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodPost, "/v1/jobs/"+job.ID.String()+"/cancel", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
