package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"moltworks/fault"
)

// Pool is the subset of pgxpool.Pool the transaction runner needs, kept small
// so tests can substitute fakes.
type Pool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const maxTxAttempts = 5

// Serializable runs fn inside a serializable transaction and commits it.
// Serialization failures and deadlocks abort the attempt and re-execute fn on
// a fresh transaction, so fn must be free of externally visible side effects
// other than its writes. Exhausted retries surface as INTERNAL.
func Serializable(ctx context.Context, pool Pool, fn func(pgx.Tx) error) error {
	var last error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fault.Wrap(fault.Internal, "db: begin tx", err)
		}

		err = fn(tx)
		if err == nil {
			if err = tx.Commit(ctx); err == nil {
				return nil
			}
		}
		_ = tx.Rollback(ctx)

		if !retryable(err) {
			return err
		}
		last = err
	}
	return fault.Wrap(fault.Internal, "db: serializable retries exhausted", last)
}

// retryable reports whether the store aborted the transaction for a conflict
// that a re-execution can resolve (SQLSTATE 40001, 40P01).
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
