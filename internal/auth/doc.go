// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

// Package auth implements the storefront credential and session-token
// lifecycle.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates an active, unverified customer with validated fields
//   - NewToken - creates an active opaque token record (hash only)
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Credentials
//
// Access tokens are signed JWTs issued by TokenIssuer and never stored.
// Refresh, password reset and email verification tokens are opaque random
// values; only their SHA-256 hashes are persisted. Consuming an opaque token
// deactivates it with a conditional update inside the same transaction as
// its effect, so concurrent use of one token succeeds at most once.
//
// # Services
//
// Service coordinates the repositories, hasher, issuer and notifier. Each
// operation runs in a single Transactor unit of work, and notifications are
// sent only after commit. Errors carry oops codes; KindOf maps them to the
// Conflict, Unauthorized, NotFound, Invalid and Internal kinds.
package auth
