// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth

import "context"

// Notifier delivers account emails. Token arguments are plaintext opaque
// tokens; implementations embed them in links and must not log them.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, fullName, token string) error
	SendPasswordResetEmail(ctx context.Context, to, fullName, token string) error
	SendWelcomeEmail(ctx context.Context, to, fullName string) error
}
