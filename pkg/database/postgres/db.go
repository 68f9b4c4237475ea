package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/retry"
	"github.com/code-payments/code-staking/pkg/retry/backoff"
)

const (
	maxTxAttempts = 5
	baseTxBackoff = 10 * time.Millisecond
	maxTxBackoff  = 250 * time.Millisecond
)

// ExecuteInTx runs fn in a transaction at the given isolation level, which
// defaults to read committed. The transaction commits if fn succeeds and rolls
// back otherwise.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	if isolation == sql.LevelDefault {
		isolation = sql.LevelReadCommitted
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		// Rollback returns the connection to the pool
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Wrapf(rollbackErr, "failed to rollback transaction after %v", err)
		}
		return err
	}
	return tx.Commit()
}

// ExecuteRetryableTx is ExecuteInTx, retried with a bounded backoff while the
// database reports a serialization failure or a deadlock. fn must be safe to
// run more than once.
func ExecuteRetryableTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	_, err := retry.Retry(
		ctx,
		func(ctx context.Context) error {
			return ExecuteInTx(ctx, db, isolation, fn)
		},
		retry.RetriableFunc(IsRetryable),
		retry.Limit(maxTxAttempts),
		retry.Backoff(backoff.Jittered(backoff.Capped(backoff.BinaryExponential(baseTxBackoff), maxTxBackoff), 0.1)),
	)
	return err
}
