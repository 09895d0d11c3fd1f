// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package notify

import (
	"context"
	"log/slog"
)

// LogSender writes message metadata to a logger instead of delivering it.
// Bodies carry token links and are never logged.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger means slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message kind, recipient and subject.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification suppressed",
		"driver", DriverLog,
		"kind", string(msg.Kind),
		"to", msg.To,
		"subject", msg.Subject)
	return nil
}
