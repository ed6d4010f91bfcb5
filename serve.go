package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/franklinjsmith-create/SupplyVerify/handler"
	"github.com/franklinjsmith-create/SupplyVerify/metrics"
	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
	"github.com/franklinjsmith-create/SupplyVerify/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.Info("configuration loaded",
		"renderer", cfg.Registry.Renderer,
		"store", cfg.Store.Backend,
		"window_size", cfg.Batch.WindowSize,
		"auth", cfg.Auth.Enabled(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	verifier, closeSource := newVerifier(cfg, m)
	defer func() {
		if err := closeSource(); err != nil {
			slog.Warn("failed to close registry source", "error", err)
		}
	}()

	store, closeStore, err := newStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Warn("failed to close session store", "error", err)
		}
	}()

	runner := service.NewRunner(verifier, store, cfg.Batch.WindowSize, m)

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterDeps{
		Config:  cfg,
		Store:   store,
		Runner:  runner,
		Metrics: m,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		slog.Error("verification batches still running at shutdown", "error", err)
	}

	slog.Info("server exited gracefully")
	return nil
}
