// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/storefront/storefront/internal/auth"
	authpg "github.com/storefront/storefront/internal/auth/postgres"
	"github.com/storefront/storefront/internal/cleanup"
	"github.com/storefront/storefront/internal/config"
	"github.com/storefront/storefront/internal/notify"
	"github.com/storefront/storefront/internal/store"
)

// app holds the database-backed dependencies shared by subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	users  *authpg.UserRepository
	tokens *authpg.TokenRepository
	tx     *authpg.Transactor

	closers []io.Closer
}

// openApp connects to the database and builds the repositories.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	pool, err := store.OpenPool(ctx, cfg.DatabaseURL, cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	return &app{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		users:  authpg.NewUserRepository(pool),
		tokens: authpg.NewTokenRepository(pool),
		tx:     authpg.NewTransactor(pool),
	}, nil
}

// service assembles the auth service with the configured notification
// pipeline. reg may be nil to skip metrics.
func (a *app) service(reg prometheus.Registerer) (*auth.Service, error) {
	if err := a.cfg.Auth.Validate(); err != nil {
		return nil, oops.With("section", "auth").Wrap(err)
	}

	notifier, closer, err := notify.Build(a.cfg.Notify, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closer)

	issuer, err := auth.NewTokenIssuer(a.cfg.Auth)
	if err != nil {
		return nil, err
	}

	opts := []auth.ServiceOption{auth.WithLogger(a.logger)}
	if reg != nil {
		opts = append(opts, auth.WithMetrics(auth.NewMetrics(reg)))
	}
	return auth.NewService(a.users, a.tokens, a.tx, auth.NewArgon2idHasher(), issuer, notifier, a.cfg.Auth, opts...)
}

// checkService assembles the auth service and drops it. Only the
// construction errors and the metrics registration matter to the caller.
func (a *app) checkService(reg prometheus.Registerer) error {
	_, err := a.service(reg)
	return err
}

// scheduler builds the cleanup scheduler over the token repository.
func (a *app) scheduler(reg prometheus.Registerer) (*cleanup.Scheduler, error) {
	opts := []cleanup.Option{cleanup.WithLogger(a.logger)}
	if reg != nil {
		opts = append(opts, cleanup.WithMetrics(cleanup.NewMetrics(reg)))
	}
	return cleanup.New(a.tokens, a.cfg.Cleanup, opts...)
}

// ping reports database readiness.
func (a *app) ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close releases notifier transports and the pool.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("error closing notifier transport", "error", err)
		}
	}
	a.pool.Close()
}
