// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/storefront/storefront/internal/auth"
)

// Transactor implements auth.Transactor on a pgx connection pool.
// It stores the active pgx.Tx in context so that repository methods called
// from fn participate in the same transaction.
type Transactor struct {
	db DB
}

// NewTransactor creates a Transactor backed by db.
func NewTransactor(db DB) *Transactor {
	return &Transactor{db: db}
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil, the transaction is committed. Otherwise it is rolled back.
// When ctx already carries a transaction, fn runs inside a savepoint so that
// its failure only discards its own writes.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	_, nested := ctx.Value(txKey{}).(pgx.Tx)

	tx, err := conn(ctx, t.db).Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").With("nested", nested).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("nested", nested).Wrap(err)
	}
	return nil
}

var _ auth.Transactor = (*Transactor)(nil)
