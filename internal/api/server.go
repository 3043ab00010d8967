// Package api exposes the HTTP interface for submitting and inspecting jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/metrics"
	"github.com/skyhookqa/skyhook/internal/queue"
)

// Server wires HTTP handlers to the job queue.
type Server struct {
	router chi.Router
	queue  queue.Queue
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(q queue.Queue, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{queue: q, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Post("/cancel", s.cancelJob)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitJobRequest struct {
	OrgID     string          `json:"org_id"`
	ProjectID string          `json:"project_id"`
	JobType   string          `json:"job_type,omitempty"`
	URL       string          `json:"url"`
	Rules     json.RawMessage `json:"rules,omitempty"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.queue.Enqueue(r.Context(), queue.EnqueueRequest{
		OrgID:     req.OrgID,
		ProjectID: req.ProjectID,
		JobType:   req.JobType,
		URL:       req.URL,
		Rules:     req.Rules,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		} else if isValidationError(err) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.queue.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

type cancelJobRequest struct {
	OrgID string `json:"org_id"`
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	var req cancelJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrgID == "" {
		s.writeError(w, http.StatusBadRequest, "missing org_id")
		return
	}
	if err := s.queue.Cancel(r.Context(), id, req.OrgID); err != nil {
		if errors.Is(err, queue.ErrNotCancelable) {
			s.writeError(w, http.StatusConflict, "job is not cancelable")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

// isValidationError distinguishes bad requests from infrastructure failures
// without threading sentinel errors through every queue implementation.
func isValidationError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"is required", "invalid"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
