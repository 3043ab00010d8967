package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/notify"
	"github.com/skyhookqa/skyhook/internal/queue"
	"github.com/skyhookqa/skyhook/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the distributed worker loop",
		Long: `worker claims pending jobs from the queue, executes one full
pipeline per job, and reports terminal state. Multiple workers may run
against the same queue; row locking guarantees each job runs exactly once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			q, closeQueue, err := buildQueue(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeQueue()

			eng, cleanup, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			w := worker.New(q, &jobExecutor{engine: eng}, worker.Config{
				PollInterval:    time.Duration(cfg.Worker.PollIntervalSec) * time.Second,
				RecoverInterval: time.Duration(cfg.Worker.RecoverEverySec) * time.Second,
				StaleTimeout:    cfg.Worker.StaleTimeout(),
				MaxPerTenant:    cfg.Worker.MaxJobsPerTenant,
			}, eng.bus, logger)

			return w.Run(ctx)
		},
	}
}

// jobExecutor adapts the engine to the worker's execution contract.
type jobExecutor struct {
	engine *engine
}

func (e *jobExecutor) Execute(ctx context.Context, job *queue.Job) error {
	res := e.engine.executePipeline(ctx, job.ProjectID, job.ID.String(), job.URL, job.Rules)

	status := "completed"
	detail := ""
	if !res.Success {
		status = "failed"
		detail = fmt.Sprintf("%s stage failed: %s", res.FailedStage, res.ErrorMessage)
	}
	msg := notify.Message{
		JobID:     job.ID.String(),
		OrgID:     job.OrgID,
		ProjectID: job.ProjectID,
		Status:    status,
		Detail:    detail,
		At:        time.Now().UTC(),
	}
	if err := e.engine.publisher.Publish(context.WithoutCancel(ctx), msg); err != nil {
		e.engine.logger.Warn("job notification failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}

	if !res.Success {
		return fmt.Errorf("%s stage failed: %s", res.FailedStage, res.ErrorMessage)
	}
	return nil
}
