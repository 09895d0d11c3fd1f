// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package authtest

import (
	"context"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/storefront/storefront/internal/auth"
)

// Hash prefixes understood by PlainHasher.
const (
	plainPrefix  = "plain:"
	legacyPrefix = "legacy:"
)

// PlainHasher is a fast, insecure PasswordHasher for tests. Hashes are the
// password with a "plain:" prefix; "legacy:" hashes verify too and report
// NeedsUpgrade.
type PlainHasher struct{}

// Hash implements auth.PasswordHasher.
func (PlainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return plainPrefix + password, nil
}

// Verify implements auth.PasswordHasher.
func (PlainHasher) Verify(password, hash string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, plainPrefix):
		return hash == plainPrefix+password, nil
	case strings.HasPrefix(hash, legacyPrefix):
		return hash == legacyPrefix+password, nil
	case strings.HasPrefix(hash, "$argon2id$"):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unrecognized hash")
	}
}

// NeedsUpgrade implements auth.PasswordHasher.
func (PlainHasher) NeedsUpgrade(hash string) bool {
	return strings.HasPrefix(hash, legacyPrefix)
}

// LegacyHash returns a hash PlainHasher accepts and flags for upgrade.
func LegacyHash(password string) string {
	return legacyPrefix + password
}

// Email kinds recorded by Notifier.
const (
	KindVerification = "verification"
	KindReset        = "reset"
	KindWelcome      = "welcome"
)

// SentEmail is a notification captured by Notifier.
type SentEmail struct {
	Kind     string
	To       string
	FullName string
	Token    string
}

// Notifier records sent emails. Setting Err makes every send fail after
// recording the attempt.
type Notifier struct {
	mu   sync.Mutex
	sent []SentEmail
	Err  error
}

func (n *Notifier) record(email SentEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return n.Err
}

// SendVerificationEmail implements auth.Notifier.
func (n *Notifier) SendVerificationEmail(_ context.Context, to, fullName, token string) error {
	return n.record(SentEmail{Kind: KindVerification, To: to, FullName: fullName, Token: token})
}

// SendPasswordResetEmail implements auth.Notifier.
func (n *Notifier) SendPasswordResetEmail(_ context.Context, to, fullName, token string) error {
	return n.record(SentEmail{Kind: KindReset, To: to, FullName: fullName, Token: token})
}

// SendWelcomeEmail implements auth.Notifier.
func (n *Notifier) SendWelcomeEmail(_ context.Context, to, fullName string) error {
	return n.record(SentEmail{Kind: KindWelcome, To: to, FullName: fullName})
}

// Sent returns a copy of every recorded email.
func (n *Notifier) Sent() []SentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentEmail(nil), n.sent...)
}

// Last returns the most recent email of kind, or false if none was sent.
func (n *Notifier) Last(kind string) (SentEmail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i], true
		}
	}
	return SentEmail{}, false
}

// InlineTransactor runs fn directly. Useful with mock repositories.
type InlineTransactor struct{}

// InTransaction implements auth.Transactor.
func (InlineTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Verify interfaces are satisfied.
var (
	_ auth.PasswordHasher = PlainHasher{}
	_ auth.Notifier       = (*Notifier)(nil)
	_ auth.Transactor     = InlineTransactor{}
)
