package main

import (
	"context"
	"database/sql"
	"time"

	"othertales/internal/identity/service"
	dErrors "othertales/pkg/domain-errors"
	txcontext "othertales/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// sqlTx runs units of work inside a database transaction. The transaction is
// placed in the context so every store routes its statements through it; the
// stores themselves never open or close transactions.
type sqlTx struct {
	db      *sql.DB
	stores  service.Stores
	timeout time.Duration
}

func newSQLTx(db *sql.DB, stores service.Stores) *sqlTx {
	return &sqlTx{db: db, stores: stores, timeout: defaultTxTimeout}
}

func (t *sqlTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores service.Stores) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.stores); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}
