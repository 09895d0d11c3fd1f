// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/storefront/storefront/pkg/errutil"
)

// SessionLimiter keeps the number of active refresh tokens per user at or
// below a maximum by deactivating the oldest ones.
type SessionLimiter struct {
	tokens TokenRepository
	tx     Transactor
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionLimiter creates a SessionLimiter.
func NewSessionLimiter(tokens TokenRepository, tx Transactor, logger *slog.Logger) (*SessionLimiter, error) {
	if tokens == nil {
		return nil, oops.Errorf("token repository is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionLimiter{tokens: tokens, tx: tx, logger: logger, now: time.Now}, nil
}

// Limit deactivates every active refresh token of userID beyond the newest
// maxSessions. It runs in its own (nested) unit of work: a failure rolls
// back only the limiter's changes, is logged, and reported as zero.
// maxSessions <= 0 disables limiting.
func (l *SessionLimiter) Limit(ctx context.Context, userID ulid.ULID, maxSessions int) int64 {
	if maxSessions <= 0 {
		return 0
	}

	var deactivated int64
	err := l.tx.InTransaction(ctx, func(ctx context.Context) error {
		active, err := l.tokens.ListActiveByUser(ctx, userID, TokenRefresh)
		if err != nil {
			return oops.Code("SESSION_LIMIT_FAILED").With("operation", "list active").Wrap(err)
		}
		if len(active) <= maxSessions {
			return nil
		}

		excess := make([]ulid.ULID, 0, len(active)-maxSessions)
		for _, t := range active[maxSessions:] {
			excess = append(excess, t.ID)
		}

		n, err := l.tokens.DeactivateIDs(ctx, excess, l.now())
		if err != nil {
			return oops.Code("SESSION_LIMIT_FAILED").
				With("operation", "deactivate excess").
				With("count", len(excess)).
				Wrap(err)
		}
		deactivated = n
		return nil
	})
	if err != nil {
		errutil.LogErrorContext(ctx, l.logger, "session limit enforcement failed", err,
			"user_id", userID.String())
		return 0
	}

	if deactivated > 0 {
		l.logger.InfoContext(ctx, "deactivated excess sessions",
			"user_id", userID.String(),
			"count", deactivated,
			"max_sessions", maxSessions)
	}
	return deactivated
}
