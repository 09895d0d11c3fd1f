// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"

	"github.com/storefront/storefront/internal/auth"
)

// Unique constraint names from migration 000001.
const (
	constraintUsersEmail = "users_email_key"
	constraintUsersPhone = "users_phone_number_key"
)

// DB abstracts query execution for *pgxpool.Pool and pgx.Tx, so repository
// methods work within or outside of a transaction.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// conn returns the transaction carried by ctx, or db when there is none.
func conn(ctx context.Context, db DB) DB {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}

// mapUniqueViolation translates a unique violation on the users table into
// the matching domain sentinel. Other errors are returned unchanged.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintUsersEmail:
		return auth.ErrEmailTaken
	case constraintUsersPhone:
		return auth.ErrPhoneTaken
	default:
		return err
	}
}

func idStrings(ids []ulid.ULID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
