package pgx

import (
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ErrorCode from https://www.postgresql.org/docs/current/errcodes-appendix.html
type ErrorCode string

const (
	UniqueViolation ErrorCode = "23505"
	UndefinedTable  ErrorCode = "42P01"
)

// ErrorIs checks if error is *pgconn.PgError and compares codes
func ErrorIs(err error, code ErrorCode) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == string(code) {
		return pgErr, true
	}
	return nil, false
}
