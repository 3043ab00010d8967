// Package cmd wires the CLI commands around the QA engine.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/config"
	"github.com/skyhookqa/skyhook/internal/logging"
	"github.com/skyhookqa/skyhook/internal/metrics"
)

var cfgFile string

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skyhook",
		Short: "Automated web-application QA",
		Long: `skyhook crawls a target site, synthesizes test cases from its
structure, executes them with self-healing selectors and visual regression
checks, and coordinates runs across distributed workers.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newRunCmd())
	return cmd
}

// bootstrap loads configuration, the logger, and the metrics collectors.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()
	return cfg, logger, nil
}
