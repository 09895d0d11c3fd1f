// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// OpaqueTokenBytes is the entropy of refresh, reset and verification tokens.
// 32 bytes = 256 bits = 64 hex chars.
const OpaqueTokenBytes = 32

// TokenType identifies what an opaque token may be exchanged for.
type TokenType string

// Token types.
const (
	TokenEmailVerification TokenType = "EMAIL_VERIFICATION"
	TokenPasswordReset     TokenType = "PASSWORD_RESET"
	TokenRefresh           TokenType = "REFRESH_TOKEN"
)

// Valid reports whether t is a known token type.
func (t TokenType) Valid() bool {
	switch t {
	case TokenEmailVerification, TokenPasswordReset, TokenRefresh:
		return true
	}
	return false
}

// Token is a persisted opaque credential. Only the SHA-256 hash of the
// plaintext value is stored.
type Token struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	Type      TokenType
	ExpiresAt time.Time
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewToken creates a validated, active Token.
func NewToken(userID ulid.ULID, tokenType TokenType, tokenHash string, expiresAt time.Time) (*Token, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if !tokenType.Valid() {
		return nil, oops.Code("TOKEN_INVALID_TYPE").With("type", string(tokenType)).Errorf("unknown token type")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	now := time.Now()
	return &Token{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		Type:      tokenType,
		ExpiresAt: expiresAt,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsExpiredAt returns true if the token would be expired at the given time.
func (t *Token) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsUsableAt reports whether the token is active and unexpired at now.
func (t *Token) IsUsableAt(now time.Time) bool {
	return t.IsActive && !t.IsExpiredAt(now)
}

// GenerateOpaqueToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateOpaqueToken() (token, hash string, err error) {
	tokenBytes := make([]byte, OpaqueTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", OpaqueTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// HashToken computes the hex SHA-256 of an opaque token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenRepository manages opaque token persistence. Implementations must
// participate in the transaction carried by ctx, if any.
type TokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *Token) error

	// GetActiveForUpdate returns the active, unexpired token with the given
	// hash and type, locking the row for the rest of the transaction.
	// Returns ErrNotFound when no such token exists.
	GetActiveForUpdate(ctx context.Context, tokenHash string, tokenType TokenType, now time.Time) (*Token, error)

	// Consume deactivates a single active token. Returns ErrTokenConsumed if
	// the token was no longer active.
	Consume(ctx context.Context, id ulid.ULID, now time.Time) error

	// DeactivateByUser deactivates every active token of the given type owned
	// by userID and returns how many rows changed.
	DeactivateByUser(ctx context.Context, userID ulid.ULID, tokenType TokenType, now time.Time) (int64, error)

	// ListActiveByUser returns active tokens of the given type, newest first.
	ListActiveByUser(ctx context.Context, userID ulid.ULID, tokenType TokenType) ([]*Token, error)

	// DeactivateIDs deactivates the given tokens and returns how many changed.
	DeactivateIDs(ctx context.Context, ids []ulid.ULID, now time.Time) (int64, error)

	// DeleteExpired removes every token with expires_at before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteInactiveBefore removes inactive tokens last updated before cutoff.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Transactor runs fn inside a unit of work. The transaction travels in the
// context passed to fn; repositories must use that context. Nested calls
// create savepoints, so an inner failure rolls back only the inner work.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
