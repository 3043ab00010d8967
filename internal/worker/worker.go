// Package worker runs the distributed execution loop: claim a job, run one
// pipeline, report the terminal state, repeat. Stale-job recovery runs on a
// side ticker so a dead worker's claims eventually return to the pool.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/metrics"
	"github.com/skyhookqa/skyhook/internal/progress"
	"github.com/skyhookqa/skyhook/internal/queue"
)

// Executor runs one claimed job end to end.
type Executor interface {
	Execute(ctx context.Context, job *queue.Job) error
}

// Config tunes the loop.
type Config struct {
	// PollInterval is the sleep between claim attempts when the queue is
	// empty.
	PollInterval time.Duration
	// RecoverInterval is the cadence of stale-job recovery sweeps.
	RecoverInterval time.Duration
	// StaleTimeout is how long a job may run before a sweep reclaims it.
	StaleTimeout time.Duration
	// MaxPerTenant caps one org's simultaneously running jobs.
	MaxPerTenant int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.RecoverInterval <= 0 {
		c.RecoverInterval = time.Minute
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = 15 * time.Minute
	}
	if c.MaxPerTenant <= 0 {
		c.MaxPerTenant = 1
	}
}

// Worker is one claim-and-execute loop.
type Worker struct {
	queue  queue.Queue
	exec   Executor
	cfg    Config
	bus    *progress.Bus
	logger *zap.Logger
}

// New wires a worker. bus may be nil.
func New(q queue.Queue, exec Executor, cfg Config, bus *progress.Bus, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Worker{queue: q, exec: exec, cfg: cfg, bus: bus, logger: logger}
}

// Run loops until the context is canceled. Cancellation is graceful: a job
// already being processed finishes its claim-execute-complete iteration
// before the loop exits, so Run never abandons a running job mid-flight.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Duration("stale_timeout", w.cfg.StaleTimeout),
	)

	recoverTick := time.NewTicker(w.cfg.RecoverInterval)
	defer recoverTick.Stop()

	poll := time.NewTimer(0)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return nil
		case <-recoverTick.C:
			w.recoverStale(ctx)
		case <-poll.C:
			claimed := w.claimAndRun(ctx)
			if claimed {
				// Something was runnable; try again immediately.
				poll.Reset(0)
			} else {
				poll.Reset(w.cfg.PollInterval)
			}
		}
	}
}

func (w *Worker) claimAndRun(ctx context.Context) bool {
	job, err := w.queue.ClaimNext(ctx, w.cfg.MaxPerTenant)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("claim failed", zap.Error(err))
		}
		return false
	}
	if job == nil {
		return false
	}

	w.process(ctx, job)
	return true
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	metrics.WorkerStarted()
	defer metrics.WorkerStopped()

	w.emit(progress.EventJobClaimed, job, "")
	w.logger.Info("job claimed",
		zap.String("job_id", job.ID.String()),
		zap.String("org_id", job.OrgID),
		zap.String("url", job.URL),
	)

	// A claimed job runs to its terminal state even when shutdown cancels
	// ctx mid-flight; the loop exits after this iteration instead.
	jobCtx := context.WithoutCancel(ctx)
	execErr := w.exec.Execute(jobCtx, job)

	if err := w.queue.Complete(jobCtx, job.ID, execErr); err != nil {
		w.logger.Error("job completion failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}

	status := string(queue.StatusCompleted)
	detail := ""
	if execErr != nil {
		status = string(queue.StatusFailed)
		detail = execErr.Error()
		w.logger.Warn("job failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(execErr),
		)
	} else {
		w.logger.Info("job completed", zap.String("job_id", job.ID.String()))
	}
	metrics.JobFinished(status)
	w.emit(progress.EventJobFinished, job, detail)
}

func (w *Worker) recoverStale(ctx context.Context) {
	n, err := w.queue.RecoverStaleJobs(ctx, w.cfg.StaleTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("stale job recovery failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		w.logger.Warn("stale jobs recovered", zap.Int("count", n))
	}
}

func (w *Worker) emit(typ progress.EventType, job *queue.Job, detail string) {
	if w.bus == nil {
		return
	}
	w.bus.Emit(progress.Event{
		Type:    typ,
		RunID:   job.ID.String(),
		Subject: job.OrgID,
		Detail:  detail,
		At:      time.Now(),
	})
}
