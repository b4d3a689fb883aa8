// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BaseRepository provides common repository functionality with transaction support
type BaseRepository[T any] struct {
	DB    *gorm.DB
	table string
}

// NewBaseRepository creates a new base repository instance
func NewBaseRepository[T any](db *gorm.DB, table string) *BaseRepository[T] {
	return &BaseRepository[T]{
		DB:    db,
		table: table,
	}
}

// getDB returns the appropriate database connection (with or without transaction)
func (r *BaseRepository[T]) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.DB.WithContext(ctx)
}

// getDBForWrite returns database connection with transaction for write operations
func (r *BaseRepository[T]) getDBForWrite(ctx context.Context) (*gorm.DB, bool, error) {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx, false, nil // Transaction already exists, don't commit
	}

	tx := r.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, false, NewPersistenceError("begin transaction", tx.Error)
	}

	return tx, true, nil // New transaction, should commit
}

// write runs fn on a write connection, committing only a transaction it opened itself
func (r *BaseRepository[T]) write(ctx context.Context, op string, fn func(db *gorm.DB) error) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
				return
			}
			if cerr := db.Commit().Error; cerr != nil {
				err = NewPersistenceError("commit "+op, cerr)
			}
		}()
	}

	if err = fn(db); err != nil {
		return NewPersistenceError(op, err)
	}
	return nil
}

// ByID retrieves an entity by its ID
func (r *BaseRepository[T]) ByID(ctx context.Context, id uint) (*T, error) {
	db := r.getDB(ctx)

	var entity T
	err := db.Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, NewPersistenceError(fmt.Sprintf("find %s by id %d", r.table, id), err)
	}

	return &entity, nil
}

// Save inserts a new entity
func (r *BaseRepository[T]) Save(ctx context.Context, entity *T) error {
	return r.write(ctx, "create "+r.table, func(db *gorm.DB) error {
		return db.Omit(clause.Associations).Create(entity).Error
	})
}

// WithTransaction executes fn within a database transaction. The transaction is stored in the
// context handed to fn; repositories pick it up from there. A nested call joins the outer
// transaction. Any error or panic rolls the transaction back and is reported as a TransactionAbortError.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(context.Context) error) (err error) {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return NewPersistenceError("begin transaction", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			err = &TransactionAbortError{Cause: fmt.Errorf("panic in transaction: %v", r)}
		}
	}()

	txCtx := context.WithValue(ctx, TxContextKey, tx)

	if err := fn(txCtx); err != nil {
		tx.Rollback()
		return &TransactionAbortError{Cause: err}
	}

	if err := tx.Commit().Error; err != nil {
		return &TransactionAbortError{Cause: NewPersistenceError("commit transaction", err)}
	}

	return nil
}

// Transactor opens a transactional scope and hands its context to fn
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}

// GormTransactor is the PostgreSQL backed Transactor
type GormTransactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) Transactor {
	return &GormTransactor{db: db}
}

func (t *GormTransactor) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return WithTransaction(ctx, t.db, fn)
}
