// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package notify

import (
	"io"
	"log/slog"

	"github.com/samber/oops"
)

// Transport drivers.
const (
	DriverLog  = "log"
	DriverSMTP = "smtp"
	DriverAMQP = "amqp"
)

// Config selects and configures the notification pipeline.
type Config struct {
	Driver   string
	BaseURL  string
	Retry    RetryConfig
	Throttle ThrottleConfig
	SMTP     SMTPConfig
	AMQP     AMQPConfig
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Build assembles throttle, retry and the configured transport behind a
// Notifier. The returned Closer releases transport connections.
func Build(cfg Config, logger *slog.Logger) (*Notifier, io.Closer, error) {
	var (
		transport Sender
		closer    io.Closer = nopCloser{}
	)
	switch cfg.Driver {
	case DriverLog, "":
		transport = NewLogSender(logger)
	case DriverSMTP:
		s, err := NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, nil, err
		}
		transport = s
	case DriverAMQP:
		s, err := DialAMQP(cfg.AMQP)
		if err != nil {
			return nil, nil, err
		}
		transport, closer = s, s
	default:
		return nil, nil, oops.Code("NOTIFY_CONFIG_INVALID").
			With("field", "driver").
			With("driver", cfg.Driver).
			Errorf("unknown notification driver %q", cfg.Driver)
	}

	sender := NewThrottleSender(NewRetrySender(transport, cfg.Retry), cfg.Throttle)
	notifier, err := NewNotifier(sender, cfg.BaseURL)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return notifier, closer, nil
}
