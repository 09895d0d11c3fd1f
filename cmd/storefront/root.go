// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/storefront/storefront/internal/config"
	"github.com/storefront/storefront/internal/logging"
	"github.com/storefront/storefront/internal/xdg"
)

const serviceName = "storefront"

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the storefront CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront - credential and session service",
		Long: `Storefront manages customer credentials and session tokens: registration,
login, token rotation, password recovery and email verification.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/storefront/config.yaml if present)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading secrets")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCleanupCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())

	return cmd
}

// loadConfig resolves configuration for cmd and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}

	path := configFile
	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// Validate has already rejected unknown levels.
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.SetDefault(serviceName, version, cfg.LogFormat, level)
	return cfg, logger, nil
}
