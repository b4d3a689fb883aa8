package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const uniqueViolationCode = "23505"

// PersistenceError wraps any storage failure: constraint violations, connectivity loss, timeouts
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err unless it already is a PersistenceError
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// TransactionAbortError is returned when a transactional scope was rolled back
type TransactionAbortError struct {
	Cause error
}

func (e *TransactionAbortError) Error() string {
	return fmt.Sprintf("transaction aborted: %v", e.Cause)
}

func (e *TransactionAbortError) Unwrap() error {
	return e.Cause
}

func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func IsTransactionAborted(err error) bool {
	var te *TransactionAbortError
	return errors.As(err, &te)
}

// IsUniqueViolation reports whether err was caused by a unique constraint
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicate) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}

// ErrDuplicate is reported by non SQL stores for unique key collisions
var ErrDuplicate = errors.New("duplicate key value violates unique constraint")
