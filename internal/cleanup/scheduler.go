// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/storefront/storefront/pkg/errutil"
)

// Config defines sweep cadence and retention.
type Config struct {
	ExpiredInterval time.Duration // How often expired tokens are deleted
	StaleInterval   time.Duration // How often stale inactive tokens are deleted
	StaleRetention  time.Duration // How long inactive tokens are kept
	ForcedRetention time.Duration // Retention used by ForceCleanup
}

// DefaultConfig returns the daily/weekly schedule with 30/7 day retention.
func DefaultConfig() Config {
	return Config{
		ExpiredInterval: 24 * time.Hour,
		StaleInterval:   7 * 24 * time.Hour,
		StaleRetention:  30 * 24 * time.Hour,
		ForcedRetention: 7 * 24 * time.Hour,
	}
}

// Validate rejects non-positive durations. Fields are checked in declaration
// order, so the first invalid one is reported.
func (c Config) Validate() error {
	durations := []struct {
		field string
		value time.Duration
	}{
		{"expired_interval", c.ExpiredInterval},
		{"stale_interval", c.StaleInterval},
		{"stale_retention", c.StaleRetention},
		{"forced_retention", c.ForcedRetention},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return oops.Code("CLEANUP_CONFIG_INVALID").
				With("field", d.field).
				Errorf("%s must be positive, got %s", d.field, d.value)
		}
	}
	return nil
}

// TokenSweeper deletes inert tokens. auth.TokenRepository satisfies it.
type TokenSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result reports how many tokens a forced cleanup removed.
type Result struct {
	Expired int64
	Stale   int64
}

// Total returns the number of deleted tokens.
func (r Result) Total() int64 { return r.Expired + r.Stale }

// Scheduler runs the expired and stale sweeps on independent tickers.
type Scheduler struct {
	cfg     Config
	tokens  TokenSweeper
	logger  *slog.Logger
	metrics *Metrics
	clock   func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records sweep outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a Scheduler. It does not start any goroutines.
func New(tokens TokenSweeper, cfg Config, opts ...Option) (*Scheduler, error) {
	if tokens == nil {
		return nil, oops.Errorf("token sweeper is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:    cfg,
		tokens: tokens,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SweepExpired deletes every token whose expiry is before now.
func (s *Scheduler) SweepExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.tokens.DeleteExpired(ctx, s.clock())
	if err != nil {
		err = oops.Code("CLEANUP_SWEEP_FAILED").With("sweep", SweepNameExpired).Wrap(err)
	}
	s.finish(ctx, SweepNameExpired, n, time.Since(start), err)
	return n, err
}

// SweepStale deletes inactive tokens untouched for the stale retention window.
func (s *Scheduler) SweepStale(ctx context.Context) (int64, error) {
	return s.sweepInactive(ctx, s.cfg.StaleRetention)
}

// ForceCleanup runs the expired sweep and a stale sweep with the forced
// retention window. Both sweeps are attempted even if the first fails.
func (s *Scheduler) ForceCleanup(ctx context.Context) (Result, error) {
	var (
		res  Result
		errs []error
		err  error
	)
	if res.Expired, err = s.SweepExpired(ctx); err != nil {
		errs = append(errs, err)
	}
	if res.Stale, err = s.sweepInactive(ctx, s.cfg.ForcedRetention); err != nil {
		errs = append(errs, err)
	}
	s.logger.InfoContext(ctx, "forced token cleanup finished",
		"expired", res.Expired,
		"stale", res.Stale,
		"retention", s.cfg.ForcedRetention.String())
	return res, errors.Join(errs...)
}

func (s *Scheduler) sweepInactive(ctx context.Context, retention time.Duration) (int64, error) {
	start := time.Now()
	cutoff := s.clock().Add(-retention)
	n, err := s.tokens.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		err = oops.Code("CLEANUP_SWEEP_FAILED").
			With("sweep", SweepNameStale).
			With("cutoff", cutoff).
			Wrap(err)
	}
	s.finish(ctx, SweepNameStale, n, time.Since(start), err)
	return n, err
}

func (s *Scheduler) finish(ctx context.Context, sweep string, deleted int64, elapsed time.Duration, err error) {
	s.metrics.observe(sweep, deleted, elapsed, err)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "token sweep failed", err, "sweep", sweep)
		return
	}
	s.logger.InfoContext(ctx, "token sweep finished",
		"sweep", sweep,
		"deleted", deleted,
		"duration", elapsed)
}

// Start launches the two sweep loops. The first sweeps happen one interval
// after Start. Calling Start on a running scheduler is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return oops.Code("CLEANUP_ALREADY_RUNNING").Errorf("cleanup scheduler already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(2)
	go s.loop(ctx, s.cfg.ExpiredInterval, func(ctx context.Context) {
		_, _ = s.SweepExpired(ctx) //nolint:errcheck // logged in finish
	})
	go s.loop(ctx, s.cfg.StaleInterval, func(ctx context.Context) {
		_, _ = s.SweepStale(ctx) //nolint:errcheck // logged in finish
	})

	s.logger.InfoContext(ctx, "cleanup scheduler started",
		"expired_interval", s.cfg.ExpiredInterval.String(),
		"stale_interval", s.cfg.StaleInterval.String())
	return nil
}

// Stop cancels both loops and waits for an in-flight sweep to return.
// It is safe to call on a scheduler that was never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, sweep func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx)
		}
	}
}
