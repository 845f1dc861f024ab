package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockflow/domain"
)

const saleColumns = `id, user_id, items, total_amount, status, payment_method, created_at`

// InsertSale writes a sale together with its embedded line items.
func (t *Tx) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.tx.NamedExecContext(ctx, `INSERT INTO sales (`+saleColumns+`)
        VALUES (:id, :user_id, :items, :total_amount, :status, :payment_method, :created_at)`, sale)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// GetSale returns domain.ErrNotFound when id is unknown.
func (s *Store) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	var sale domain.Sale
	err := s.db.GetContext(ctx, &sale, s.db.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sale{}, fmt.Errorf("sale %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Sale{}, fmt.Errorf("get sale %s: %w", id, err)
	}
	return sale, nil
}

// ListSales returns sales newest first. A non-empty userID restricts the
// result to that user's sales.
func (s *Store) ListSales(ctx context.Context, userID string) ([]domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id`

	sales := []domain.Sale{}
	if err := s.db.SelectContext(ctx, &sales, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}
