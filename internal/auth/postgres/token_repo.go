// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/storefront/storefront/internal/auth"
)

const tokenColumns = `id, user_id, token_hash, type, expires_at, is_active, created_at, updated_at`

// TokenRepository implements auth.TokenRepository using PostgreSQL.
type TokenRepository struct {
	db DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a new token. Only the hash is persisted.
func (r *TokenRepository) Create(ctx context.Context, token *auth.Token) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		string(token.Type),
		token.ExpiresAt,
		token.IsActive,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert token").
			With("user_id", token.UserID.String()).
			With("type", string(token.Type)).
			Wrap(err)
	}
	return nil
}

// GetActiveForUpdate returns the active, unexpired token matching tokenHash
// and tokenType. The row stays locked until the surrounding transaction ends.
func (r *TokenRepository) GetActiveForUpdate(ctx context.Context, tokenHash string, tokenType auth.TokenType, now time.Time) (*auth.Token, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE token_hash = $1 AND type = $2 AND is_active = true AND expires_at > $3
		FOR UPDATE
	`, tokenHash, string(tokenType), now)

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("type", string(tokenType)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "get active token").
			With("type", string(tokenType)).
			Wrap(err)
	}
	return token, nil
}

// Consume deactivates a single token if it is still active.
func (r *TokenRepository) Consume(ctx context.Context, id ulid.ULID, now time.Time) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE tokens SET is_active = false, updated_at = $2
		WHERE id = $1 AND is_active = true
	`, id.String(), now)
	if err != nil {
		return oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "consume token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_ALREADY_CONSUMED").
			With("id", id.String()).
			Wrap(auth.ErrTokenConsumed)
	}
	return nil
}

// DeactivateByUser deactivates every active token of tokenType owned by userID.
func (r *TokenRepository) DeactivateByUser(ctx context.Context, userID ulid.ULID, tokenType auth.TokenType, now time.Time) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE tokens SET is_active = false, updated_at = $3
		WHERE user_id = $1 AND type = $2 AND is_active = true
	`, userID.String(), string(tokenType), now)
	if err != nil {
		return 0, oops.Code("TOKEN_DEACTIVATE_FAILED").
			With("operation", "deactivate tokens by user").
			With("user_id", userID.String()).
			With("type", string(tokenType)).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// ListActiveByUser returns active tokens of tokenType owned by userID,
// newest first. Ties on created_at are broken by id.
func (r *TokenRepository) ListActiveByUser(ctx context.Context, userID ulid.ULID, tokenType auth.TokenType) ([]*auth.Token, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE user_id = $1 AND type = $2 AND is_active = true
		ORDER BY created_at DESC, id DESC
	`, userID.String(), string(tokenType))
	if err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").
			With("operation", "list active tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var tokens []*auth.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, oops.Code("TOKEN_LIST_FAILED").
				With("user_id", userID.String()).
				Wrap(err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").
			With("operation", "iterate tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tokens, nil
}

// DeactivateIDs deactivates the given tokens.
func (r *TokenRepository) DeactivateIDs(ctx context.Context, ids []ulid.ULID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE tokens SET is_active = false, updated_at = $2
		WHERE id = ANY($1) AND is_active = true
	`, idStrings(ids), now)
	if err != nil {
		return 0, oops.Code("TOKEN_DEACTIVATE_FAILED").
			With("operation", "deactivate tokens by id").
			With("count", len(ids)).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes every token that expired before now.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteInactiveBefore removes inactive tokens last touched before cutoff.
func (r *TokenRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `
		DELETE FROM tokens WHERE is_active = false AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_INACTIVE_FAILED").
			With("operation", "delete inactive tokens").
			With("cutoff", cutoff).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanToken scans a single row into a Token.
// Callers are responsible for handling pgx.ErrNoRows.
func scanToken(row pgx.Row) (*auth.Token, error) {
	var (
		token     auth.Token
		idStr     string
		userIDStr string
		tokenType string
	)
	err := row.Scan(
		&idStr,
		&userIDStr,
		&token.TokenHash,
		&tokenType,
		&token.ExpiresAt,
		&token.IsActive,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "scan token").
			Wrap(err)
	}

	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").
			With("operation", "parse token id").
			With("id", idStr).
			Wrap(err)
	}
	if token.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").
			With("operation", "parse token user id").
			With("user_id", userIDStr).
			Wrap(err)
	}
	token.Type = auth.TokenType(tokenType)
	return &token, nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
