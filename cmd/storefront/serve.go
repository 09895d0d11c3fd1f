// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/storefront/storefront/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// ObservabilityServer is the part of observability.Server serve uses.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// sweepScheduler is the part of cleanup.Scheduler serve uses.
type sweepScheduler interface {
	Start(ctx context.Context) error
	Stop()
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run background token cleanup with metrics and health endpoints",
		Long: `Run the token cleanup scheduler and the observability server until
SIGINT or SIGTERM. serve exposes no auth API itself: the auth service is
assembled once at startup and discarded, so that a bad secret or notification
transport fails fast and the auth metrics are registered.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Metrics are skipped entirely when the endpoint is disabled.
	var (
		obs ObservabilityServer
		reg prometheus.Registerer
	)
	if cfg.MetricsAddr != "" {
		obsServer := observability.NewServer(cfg.MetricsAddr, version, a.ping, logger)
		obs, reg = obsServer, obsServer.Registry()
	}

	if err := a.checkService(reg); err != nil {
		return oops.With("operation", "build auth service").Wrap(err)
	}
	logger.Info("auth service ready", "notify_driver", cfg.Notify.Driver)

	sched, err := a.scheduler(reg)
	if err != nil {
		return err
	}

	cmd.Println("Storefront started")
	return serveUntilDone(ctx, sched, obs, logger)
}

// serveUntilDone starts sched and obs and blocks until ctx is cancelled or
// the observability server fails, then stops both.
func serveUntilDone(ctx context.Context, sched sweepScheduler, obs ObservabilityServer, logger *slog.Logger) error {
	var obsErrCh <-chan error
	if obs != nil {
		errCh, err := obs.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("component", "observability").Wrap(err)
		}
		obsErrCh = errCh
	}

	if err := sched.Start(ctx); err != nil {
		stopObservability(obs, logger)
		return oops.Code("SERVE_FAILED").With("component", "cleanup").Wrap(err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err, ok := <-obsErrCh:
		if ok && err != nil {
			runErr = oops.Code("SERVE_FAILED").With("component", "observability").Wrap(err)
		}
	}

	logger.Info("shutting down...")
	sched.Stop()
	stopObservability(obs, logger)
	logger.Info("shutdown complete")
	return runErr
}

func stopObservability(obs ObservabilityServer, logger *slog.Logger) {
	if obs == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obs.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}
