package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"link2ur.backend/internal/config"
	"link2ur.backend/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var listen = func(srv *http.Server) error { return srv.ListenAndServe() }

func newServeCmd() *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the maintenance scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before starting")
	return cmd
}

// runServe blocks until ctx ends or the listener fails, then drains HTTP,
// the scheduler and the notification dispatcher in that order.
func runServe(ctx context.Context, cfg *config.Config, migrateFirst bool) error {
	if migrateFirst {
		if err := migrateUp(ctx, cfg.Database.DSN()); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(closeCtx)
	}()

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Scheduler.Enabled {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		logger.Info(ctx, "Scheduler disabled")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- listen(srv) }()
	logger.Info(ctx, "Link2Ur backend starting",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
	)

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "HTTP shutdown failed", zap.Error(err))
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Scheduler shutdown failed", zap.Error(err))
	}
	return serveErr
}
