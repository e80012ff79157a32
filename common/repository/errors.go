package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrTaskNotFound is returned when the referenced task row does not exist
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a write would violate the
	// task state machine
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrVersionConflict is returned when a history append collides
	// with a concurrent writer on (task_id, version_number)
	ErrVersionConflict = errors.New("history version conflict")

	// ErrHistoryNotFound is returned when no history row matches
	ErrHistoryNotFound = errors.New("history record not found")
)

// isUniqueViolation reports whether err is a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
