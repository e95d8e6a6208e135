package dbutil

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
)

// maxAttempts bounds how often InTx reruns a transaction Postgres aborted
// because of a concurrent one.
const maxAttempts = 3

// Tx is a transaction that remembers whether it has been finished, so
// MaybeRollback can be deferred unconditionally.
type Tx struct {
	tx *sql.Tx
}

func (tt *Tx) Tx() *sql.Tx {
	return tt.tx
}

func NewTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (tt *Tx) MaybeRollback() {
	if tt.tx != nil {
		_ = tt.tx.Rollback()
		tt.tx = nil
	}
}

func (tt *Tx) Commit() error {
	err := tt.tx.Commit()
	if err == nil {
		tt.tx = nil
	}
	return err
}

func (tt *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return tt.tx.QueryRowContext(ctx, query, args...)
}

func (tt *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tt.tx.QueryContext(ctx, query, args...)
}

func (tt *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tt.tx.ExecContext(ctx, query, args...)
}

// IsRetryable reports whether err is Postgres giving up on a transaction
// because of a concurrent one: a serialization failure or a deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func runOnce(ctx context.Context, db *sql.DB, f func(tx *Tx) error) error {
	tx, err := NewTx(ctx, db, nil)
	if err != nil {
		return err
	}
	defer tx.MaybeRollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// InTx runs f in a transaction, committing if f returns nil.  If Postgres
// aborts it for a conflict, f runs again in a fresh transaction, so f must
// not have effects outside tx.
func InTx(ctx context.Context, db *sql.DB, f func(tx *Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = runOnce(ctx, db, f)
		if !IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		log.Printf("transaction conflict, attempt %d of %d: %v", attempt, maxAttempts, err)
	}
	return err
}
