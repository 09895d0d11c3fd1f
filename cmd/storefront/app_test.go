// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package main

import (
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/storefront/internal/auth"
	authpg "github.com/storefront/storefront/internal/auth/postgres"
	"github.com/storefront/storefront/internal/config"
	"github.com/storefront/storefront/internal/notify"
	"github.com/storefront/storefront/pkg/errutil"
)

// newTestApp builds an app whose repositories are never queried.
func newTestApp(mutate func(*auth.Config)) *app {
	authCfg := auth.DefaultConfig()
	authCfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	if mutate != nil {
		mutate(&authCfg)
	}
	return &app{
		cfg: &config.Config{
			Auth: authCfg,
			Notify: notify.Config{
				Driver:   notify.DriverLog,
				BaseURL:  "https://shop.example.com",
				Retry:    notify.DefaultRetryConfig(),
				Throttle: notify.DefaultThrottleConfig(),
			},
		},
		logger: slog.New(slog.DiscardHandler),
		users:  authpg.NewUserRepository(nil),
		tokens: authpg.NewTokenRepository(nil),
		tx:     authpg.NewTransactor(nil),
	}
}

func TestApp_CheckService(t *testing.T) {
	a := newTestApp(nil)
	reg := prometheus.NewRegistry()

	require.NoError(t, a.checkService(reg))
	assert.Len(t, a.closers, 1)

	dup := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_auth_operations_total",
		Help: "duplicate",
	}, []string{"operation", "outcome"})
	assert.Error(t, reg.Register(dup), "auth metrics should already be registered")
}

func TestApp_CheckService_InvalidAuthConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.Config)
		field  string
	}{
		{"short secret", func(c *auth.Config) { c.JWTSecret = "short" }, "jwt_secret"},
		{"asymmetric algorithm", func(c *auth.Config) { c.JWTAlgorithm = "RS256" }, "jwt_algorithm"},
		{"zero access ttl", func(c *auth.Config) { c.AccessTTL = 0 }, "access_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(tt.mutate)

			err := a.checkService(nil)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "field", tt.field)
			errutil.AssertErrorContext(t, err, "section", "auth")
			assert.Empty(t, a.closers, "no transport is opened for a rejected config")
		})
	}
}

func TestApp_CheckService_UnknownDriver(t *testing.T) {
	a := newTestApp(nil)
	a.cfg.Notify.Driver = "pigeon"

	err := a.checkService(nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "NOTIFY_CONFIG_INVALID")
}
