// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/storefront/storefront/internal/cleanup"
)

// tokenCleaner is the part of cleanup.Scheduler the cleanup command uses.
type tokenCleaner interface {
	SweepExpired(ctx context.Context) (int64, error)
	SweepStale(ctx context.Context) (int64, error)
	ForceCleanup(ctx context.Context) (cleanup.Result, error)
}

// NewCleanupCmd creates the cleanup subcommand.
func NewCleanupCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired and stale tokens once",
		Long: `Run the expired and stale token sweeps once and exit.
With --force the stale sweep uses the shorter forced retention window.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := a.scheduler(nil)
			if err != nil {
				return err
			}
			return runCleanup(cmd, sched, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "use the forced retention window for stale tokens")
	return cmd
}

func runCleanup(cmd *cobra.Command, cleaner tokenCleaner, force bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if force {
		result, err := cleaner.ForceCleanup(ctx)
		cmd.Printf("Deleted %d expired and %d stale tokens\n", result.Expired, result.Stale)
		return err
	}

	expired, err := cleaner.SweepExpired(ctx)
	if err != nil {
		return err
	}
	stale, err := cleaner.SweepStale(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Deleted %d expired and %d stale tokens\n", expired, stale)
	return nil
}
