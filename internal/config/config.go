// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

// Package config loads storefront configuration from a YAML file, command
// line flags and environment secrets.
//
// Precedence, highest first: explicitly set flags, the YAML file, flag
// defaults. Secrets are never read from the file; they come from the
// environment, optionally populated from a .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/storefront/storefront/internal/auth"
	"github.com/storefront/storefront/internal/cleanup"
	"github.com/storefront/storefront/internal/logging"
	"github.com/storefront/storefront/internal/notify"
	"github.com/storefront/storefront/internal/store"
)

// Environment variables holding secrets.
const (
	EnvDatabaseURL  = "DATABASE_URL"
	EnvJWTSecret    = "STOREFRONT_JWT_SECRET"
	EnvSMTPPassword = "STOREFRONT_SMTP_PASSWORD"
	EnvAMQPURL      = "STOREFRONT_AMQP_URL"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	LogFormat   string
	LogLevel    string
	MetricsAddr string
	DatabaseURL string
	Database    store.PoolConfig
	Auth        auth.Config
	Cleanup     cleanup.Config
	Notify      notify.Config
}

// RegisterFlags defines one flag per configuration key on fs. Flag names
// equal the dotted keys so posflag maps them without a callback.
func RegisterFlags(fs *pflag.FlagSet) {
	authDefaults := auth.DefaultConfig()
	cleanupDefaults := cleanup.DefaultConfig()
	retryDefaults := notify.DefaultRetryConfig()
	throttleDefaults := notify.DefaultThrottleConfig()

	fs.String("log.format", "json", "log format (json or text)")
	fs.String("log.level", "info", "log level (debug, info, warn, error)")
	fs.String("metrics.addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")

	fs.Int32("database.max_conns", 0, "maximum pool connections (0 = pgxpool default)")
	fs.Int32("database.min_conns", 0, "minimum idle pool connections")
	fs.Duration("database.max_conn_lifetime", 0, "maximum connection lifetime (0 = pgxpool default)")

	fs.String("auth.jwt.algorithm", authDefaults.JWTAlgorithm, "access token signing algorithm (HS256, HS384, HS512)")
	fs.String("auth.jwt.issuer", authDefaults.Issuer, "access token issuer claim")
	fs.Duration("auth.access_ttl", authDefaults.AccessTTL, "access token lifetime")
	fs.Duration("auth.refresh_ttl", authDefaults.RefreshTTL, "refresh token lifetime")
	fs.Duration("auth.verification_ttl", authDefaults.VerificationTTL, "email verification token lifetime")
	fs.Duration("auth.reset_ttl", authDefaults.ResetTTL, "password reset token lifetime")
	fs.Int("auth.max_sessions", authDefaults.MaxSessions, "active sessions kept per user (0 = unlimited)")

	fs.Duration("cleanup.expired_interval", cleanupDefaults.ExpiredInterval, "expired token sweep interval")
	fs.Duration("cleanup.stale_interval", cleanupDefaults.StaleInterval, "stale token sweep interval")
	fs.Duration("cleanup.stale_retention", cleanupDefaults.StaleRetention, "retention of inactive tokens")
	fs.Duration("cleanup.forced_retention", cleanupDefaults.ForcedRetention, "retention used by forced cleanup")

	fs.String("notify.driver", notify.DriverLog, "notification transport (log, smtp, amqp)")
	fs.String("notify.base_url", "http://localhost:3000", "frontend URL used in email links")
	fs.Uint64("notify.retries", retryDefaults.MaxRetries, "delivery retries after the first attempt")
	fs.Duration("notify.retry_base_delay", retryDefaults.BaseDelay, "initial retry backoff")
	fs.Duration("notify.retry_max_delay", retryDefaults.MaxDelay, "maximum retry backoff")
	fs.Duration("notify.per_recipient_rate", throttleDefaults.Every, "minimum spacing of emails to one recipient")
	fs.Int("notify.per_recipient_burst", throttleDefaults.Burst, "emails one recipient may receive in a burst")
	fs.String("notify.smtp.host", "", "SMTP server host")
	fs.Int("notify.smtp.port", 587, "SMTP server port")
	fs.String("notify.smtp.username", "", "SMTP username")
	fs.String("notify.smtp.from", "", "sender address")
	fs.Bool("notify.smtp.tls", true, "require STARTTLS")
	fs.Duration("notify.smtp.timeout", 10*time.Second, "SMTP dial and send timeout")
	fs.String("notify.amqp.queue", notify.DefaultQueue, "queue notification jobs are published to")
}

// LoadEnvFile populates the process environment from path. A missing file
// is not an error; variables already set are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_ENV_FILE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// Load resolves configuration from the YAML file at path (optional) and the
// flags registered by RegisterFlags, then reads secrets from the environment.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}
	if flags != nil {
		// Passing k makes unchanged flags act as defaults beneath file values.
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := fromKoanf(k)
	cfg.DatabaseURL = os.Getenv(EnvDatabaseURL)
	cfg.Auth.JWTSecret = os.Getenv(EnvJWTSecret)
	cfg.Notify.SMTP.Password = os.Getenv(EnvSMTPPassword)
	cfg.Notify.AMQP.URL = os.Getenv(EnvAMQPURL)
	return cfg, nil
}

func fromKoanf(k *koanf.Koanf) *Config {
	return &Config{
		LogFormat:   k.String("log.format"),
		LogLevel:    k.String("log.level"),
		MetricsAddr: k.String("metrics.addr"),
		Database: store.PoolConfig{
			MaxConns:        int32(k.Int("database.max_conns")),
			MinConns:        int32(k.Int("database.min_conns")),
			MaxConnLifetime: k.Duration("database.max_conn_lifetime"),
		},
		Auth: auth.Config{
			JWTAlgorithm:    k.String("auth.jwt.algorithm"),
			Issuer:          k.String("auth.jwt.issuer"),
			AccessTTL:       k.Duration("auth.access_ttl"),
			RefreshTTL:      k.Duration("auth.refresh_ttl"),
			VerificationTTL: k.Duration("auth.verification_ttl"),
			ResetTTL:        k.Duration("auth.reset_ttl"),
			MaxSessions:     k.Int("auth.max_sessions"),
		},
		Cleanup: cleanup.Config{
			ExpiredInterval: k.Duration("cleanup.expired_interval"),
			StaleInterval:   k.Duration("cleanup.stale_interval"),
			StaleRetention:  k.Duration("cleanup.stale_retention"),
			ForcedRetention: k.Duration("cleanup.forced_retention"),
		},
		Notify: notify.Config{
			Driver:  k.String("notify.driver"),
			BaseURL: k.String("notify.base_url"),
			Retry: notify.RetryConfig{
				MaxRetries: uint64(k.Int64("notify.retries")),
				BaseDelay:  k.Duration("notify.retry_base_delay"),
				MaxDelay:   k.Duration("notify.retry_max_delay"),
			},
			Throttle: notify.ThrottleConfig{
				Every:   k.Duration("notify.per_recipient_rate"),
				Burst:   k.Int("notify.per_recipient_burst"),
				IdleTTL: notify.DefaultThrottleConfig().IdleTTL,
			},
			SMTP: notify.SMTPConfig{
				Host:     k.String("notify.smtp.host"),
				Port:     k.Int("notify.smtp.port"),
				Username: k.String("notify.smtp.username"),
				From:     k.String("notify.smtp.from"),
				TLS:      k.Bool("notify.smtp.tls"),
				Timeout:  k.Duration("notify.smtp.timeout"),
			},
			AMQP: notify.AMQPConfig{
				Queue: k.String("notify.amqp.queue"),
			},
		},
	}
}

// Validate checks settings every command depends on. Secrets are checked by
// RequireDatabase and by auth.Config.Validate where they are needed.
func (c *Config) Validate() error {
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatText {
		return oops.Code("CONFIG_INVALID").
			With("field", "log.format").
			Errorf("log.format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "log.level").Wrap(err)
	}
	if c.Database.MinConns < 0 || c.Database.MaxConns < 0 {
		return oops.Code("CONFIG_INVALID").
			With("field", "database.max_conns").
			Errorf("connection counts must not be negative")
	}
	if c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns {
		return oops.Code("CONFIG_INVALID").
			With("field", "database.min_conns").
			Errorf("database.min_conns %d exceeds database.max_conns %d", c.Database.MinConns, c.Database.MaxConns)
	}
	if err := c.Cleanup.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "cleanup").Wrap(err)
	}
	if c.Notify.BaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "notify.base_url").
			Errorf("notify.base_url is required")
	}
	if c.Notify.Throttle.Every <= 0 || c.Notify.Throttle.Burst <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("field", "notify.per_recipient_rate").
			Errorf("per-recipient rate and burst must be positive")
	}
	return nil
}

// RequireDatabase reports a missing DATABASE_URL.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", EnvDatabaseURL).
			Errorf("%s environment variable is required", EnvDatabaseURL)
	}
	return nil
}
