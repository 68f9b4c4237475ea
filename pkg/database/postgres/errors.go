package pg

import (
	"database/sql"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
)

// CheckNoRows translates sql.ErrNoRows into outErr, passing other errors
// through.
func CheckNoRows(inErr, outErr error) error {
	if IsNoRows(inErr) {
		return outErr
	}
	return inErr
}

func IsNoRows(err error) bool {
	return err != nil && errors.Is(err, sql.ErrNoRows)
}

// CheckUniqueViolation translates unique constraint violations into outErr,
// passing other errors through.
func CheckUniqueViolation(inErr, outErr error) error {
	if IsUniqueViolation(inErr) {
		return outErr
	}
	return inErr
}

func IsUniqueViolation(err error) bool {
	return sqlState(err) == pgerrcode.UniqueViolation
}

// IsRetryable reports whether the transaction that produced err can be run
// again from the start.
func IsRetryable(err error) bool {
	switch sqlState(err) {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	}
	return false
}

// sqlState returns the SQLSTATE code carried by err, if any.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if err != nil && errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
