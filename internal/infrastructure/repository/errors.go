package repository

import (
	"context"
	stderrors "errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
)

// Postgres SQLSTATE codes the gateway distinguishes.
const (
	codeInsufficientPrivilege = "42501"
	codeUniqueViolation       = "23505"
	codeForeignKeyViolation   = "23503"
	codeSerializationFailure  = "40001"
	codeDeadlockDetected      = "40P01"
	codeQueryCanceled         = "57014"
	codeLockNotAvailable      = "55P03"
)

// IsInsufficientPrivilege reports a permission or row level security rejection.
func IsInsufficientPrivilege(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeInsufficientPrivilege
}

// IsDuplicateKeyViolation checks if the error is a unique constraint violation
func IsDuplicateKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}

// IsForeignKeyViolation checks if the error is a foreign key constraint violation
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}

// IsConnectionError checks if the error is related to database connectivity
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	if stderrors.As(err, &connErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no connection to the server")
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeQueryCanceled, codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return true
		}
	}
	return pgconn.Timeout(err)
}

// mapError translates driver errors into the domain taxonomy. Typed domain errors pass
// through unchanged.
func mapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	switch {
	case stderrors.Is(err, pgx.ErrNoRows):
		return errors.NewNotFoundError(operation).WithCause(err)
	case IsInsufficientPrivilege(err):
		return errors.NewDeniedError(operation).WithCause(err)
	case isTimeout(err), IsConnectionError(err):
		return errors.NewTransientError("database unavailable").
			WithDetails(map[string]interface{}{"operation": operation}).
			WithCause(err)
	case IsDuplicateKeyViolation(err):
		return errors.NewValidationError("DUPLICATE", "record already exists").WithCause(err)
	case IsForeignKeyViolation(err):
		return errors.NewValidationError("REFERENCE_MISSING", "referenced record does not exist").WithCause(err)
	default:
		return errors.NewInternalError(operation + " failed").WithCause(err)
	}
}
