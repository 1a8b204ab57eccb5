package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a unique name is already taken.
	ErrConflict = errors.New("storage: conflict")
	// ErrInvalid is returned when an entity fails validation before any
	// query runs.
	ErrInvalid = errors.New("storage: invalid input")
)

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
