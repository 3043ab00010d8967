package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/api"
	"github.com/skyhookqa/skyhook/internal/config"
	"github.com/skyhookqa/skyhook/internal/queue"
	queuememory "github.com/skyhookqa/skyhook/internal/queue/memory"
	queuepg "github.com/skyhookqa/skyhook/internal/queue/postgres"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for submitting and inspecting jobs",
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

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           api.NewServer(q, logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("api listening", zap.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("api server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown api server: %w", err)
			}
			logger.Info("api stopped")
			return nil
		},
	}
}

// buildQueue picks the Postgres queue when a DSN is configured, otherwise a
// single-process in-memory queue.
func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (queue.Queue, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set, using in-memory queue; jobs will not survive restarts")
		return queuememory.New(), func() {}, nil
	}
	pg, err := queuepg.New(ctx, queuepg.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifeMins) * time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build job queue: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
