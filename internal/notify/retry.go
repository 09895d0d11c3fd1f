// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package notify

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ErrPermanent marks delivery failures that retrying cannot fix, such as a
// malformed recipient address.
var ErrPermanent = errors.New("permanent delivery failure")

type permanentError struct{ err error }

func (e permanentError) Error() string        { return e.err.Error() }
func (e permanentError) Unwrap() error        { return e.err }
func (e permanentError) Is(target error) bool { return target == ErrPermanent }

func permanent(err error) error { return permanentError{err: err} }

// RetryConfig configures exponential backoff for RetrySender.
type RetryConfig struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig retries three times starting at 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// RetrySender retries transient failures of the wrapped Sender with
// jittered exponential backoff. Permanent failures return immediately.
type RetrySender struct {
	next Sender
	cfg  RetryConfig
}

// NewRetrySender wraps next.
func NewRetrySender(next Sender, cfg RetryConfig) *RetrySender {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &RetrySender{next: next, cfg: cfg}
}

// Send delivers msg, retrying up to MaxRetries times.
func (s *RetrySender) Send(ctx context.Context, msg Message) error {
	backoff := retry.NewExponential(s.cfg.BaseDelay)
	backoff = retry.WithCappedDuration(s.cfg.MaxDelay, backoff)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithMaxRetries(s.cfg.MaxRetries, backoff)

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := s.next.Send(ctx, msg)
		if err == nil || errors.Is(err, ErrPermanent) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.Code("NOTIFY_DELIVERY_FAILED").
			With("kind", string(msg.Kind)).
			With("attempts", attempts).
			Wrap(err)
	}
	return nil
}
