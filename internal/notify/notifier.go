// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package notify

import (
	"context"
	"net/url"

	"github.com/samber/oops"

	"github.com/storefront/storefront/internal/auth"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier implements auth.Notifier by rendering messages and passing them
// to a Sender.
type Notifier struct {
	sender  Sender
	baseURL *url.URL
}

// NewNotifier creates a Notifier. baseURL is the storefront frontend that
// serves the verify-email and reset-password pages.
func NewNotifier(sender Sender, baseURL string) (*Notifier, error) {
	if sender == nil {
		return nil, oops.Errorf("sender is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.Code("NOTIFY_INVALID_BASE_URL").
			With("base_url", baseURL).
			Errorf("base url must be absolute")
	}
	return &Notifier{sender: sender, baseURL: u}, nil
}

// SendVerificationEmail sends the verify-email link.
func (n *Notifier) SendVerificationEmail(ctx context.Context, to, fullName, token string) error {
	return n.send(ctx, KindVerification, to, fullName, tokenLink(n.baseURL, VerifyEmailPath, token))
}

// SendPasswordResetEmail sends the reset-password link.
func (n *Notifier) SendPasswordResetEmail(ctx context.Context, to, fullName, token string) error {
	return n.send(ctx, KindPasswordReset, to, fullName, tokenLink(n.baseURL, ResetPasswordPath, token))
}

// SendWelcomeEmail sends the post-verification welcome message.
func (n *Notifier) SendWelcomeEmail(ctx context.Context, to, fullName string) error {
	return n.send(ctx, KindWelcome, to, fullName, "")
}

func (n *Notifier) send(ctx context.Context, kind Kind, to, fullName, link string) error {
	msg, err := render(kind, to, fullName, link)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").
			With("kind", string(kind)).
			Wrap(err)
	}
	return nil
}

var _ auth.Notifier = (*Notifier)(nil)
