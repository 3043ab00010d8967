package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skyhookqa/skyhook/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Run one pipeline against a URL without the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, cleanup, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runID := uuid.NewString()
			res := eng.executePipeline(ctx, project, runID, args[0], nil)
			printResult(cmd, res)
			if !res.Success {
				return fmt.Errorf("pipeline failed at %s: %s", res.FailedStage, res.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "default", "project identifier for artifact paths")
	return cmd
}

func printResult(cmd *cobra.Command, res pipeline.Result) {
	cmd.Printf("run %s: success=%t duration=%s\n", res.RunID, res.Success, res.Duration.Round(time.Millisecond))
	for _, stage := range res.CompletedStages {
		cmd.Printf("  stage %-8s ok\n", stage)
	}
	if res.FailedStage != "" {
		cmd.Printf("  stage %-8s FAILED: %s\n", res.FailedStage, res.ErrorMessage)
	}
}
