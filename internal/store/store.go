// Package store persists products, suppliers, users and sales with sqlx.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"stockflow/domain"
)

// Store is the sqlx-backed repository for every entity.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// New constructs a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) postgres() bool { return s.db.DriverName() == "pgx" }

// Tx is a unit of work. All reads and writes made through it commit or
// roll back together.
type Tx struct {
	tx       *sqlx.Tx
	postgres bool
	now      func() time.Time
}

// SaleTx is the part of a unit of work needed to check out a cart.
type SaleTx interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	DecrementStock(ctx context.Context, productID string, quantity int64) error
	InsertSale(ctx context.Context, sale domain.Sale) error
}

// WithinTx runs fn inside a transaction. The transaction is committed only
// when fn returns nil; any error or panic rolls it back. Storage-level
// serialization failures and deadline expiry come back as
// *domain.TransactionConflictError.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		_ = sqlTx.Rollback()
	}()

	if err := fn(&Tx{tx: sqlTx, postgres: s.postgres(), now: s.now}); err != nil {
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	committed = true
	return nil
}

// WithinSaleTx is WithinTx narrowed to SaleTx.
func (s *Store) WithinSaleTx(ctx context.Context, fn func(tx SaleTx) error) error {
	return s.WithinTx(ctx, func(tx *Tx) error { return fn(tx) })
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
