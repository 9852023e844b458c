package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-tables/models"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTableNotFound       = errors.New("table not found")
	ErrSessionNotFound     = errors.New("usage session not found")
	ErrSessionConflict     = errors.New("table already has an open usage session")
	ErrNoCapacity          = errors.New("no free table number left")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError names the offending field so callers can fix their input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError optionally carries a free number the caller could use instead.
type ConflictError struct {
	Reason          string
	SuggestedNumber string
}

func (e *ConflictError) Error() string {
	if e.SuggestedNumber != "" {
		return fmt.Sprintf("%s (suggested number: %s)", e.Reason, e.SuggestedNumber)
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type TransitionError struct {
	From models.TableStatus
	To   models.TableStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change table status from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// isUniqueViolation reports whether err came from a unique index rejecting a
// write. gorm.ErrDuplicatedKey covers dialects opened with TranslateError; the
// driver checks cover connections opened without it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
