package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"stockflow/domain"
)

const productColumns = `id, name, description, purchase_price, sale_price, stock_quantity, minimum_stock, supplier_id, created_at, updated_at`

// CreateProduct validates and inserts p, assigning its id and timestamps.
func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := domain.ValidateProduct(p); err != nil {
		return domain.Product{}, err
	}
	if err := s.checkSupplier(ctx, p.SupplierID); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO products (`+productColumns+`)
        VALUES (:id, :name, :description, :purchase_price, :sale_price, :stock_quantity, :minimum_stock, :supplier_id, :created_at, :updated_at)`, p)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// GetProduct returns a *domain.ProductNotFoundError when id is unknown.
func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q sqlx.ExtContext, id string) (domain.Product, error) {
	var p domain.Product
	err := sqlx.GetContext(ctx, q, &p, q.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// ListProducts returns products ordered by name, optionally filtered by a
// case-insensitive name fragment.
func (s *Store) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		query += ` WHERE LOWER(name) LIKE ?`
		args = append(args, "%"+strings.ToLower(search)+"%")
	}
	query += ` ORDER BY name, id`

	products := []domain.Product{}
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// UpdateProduct rewrites the catalog attributes of p. Stock quantity is left
// alone; it only changes through AdjustStock and DecrementStock.
func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := domain.ValidateProduct(p); err != nil {
		return domain.Product{}, err
	}
	if err := s.checkSupplier(ctx, p.SupplierID); err != nil {
		return domain.Product{}, err
	}

	p.UpdatedAt = s.now()
	res, err := s.db.NamedExecContext(ctx, `UPDATE products SET name = :name, description = :description,
        purchase_price = :purchase_price, sale_price = :sale_price, minimum_stock = :minimum_stock,
        supplier_id = :supplier_id, updated_at = :updated_at WHERE id = :id`, p)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %s: %w", p.ID, err)
	}
	n, err := affected(res)
	if err != nil {
		return domain.Product{}, err
	}
	if n == 0 {
		return domain.Product{}, domain.NewProductNotFoundError(p.ID)
	}
	return s.GetProduct(ctx, p.ID)
}

// DeleteProduct removes a product. Past sales keep their captured line items.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM products WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewProductNotFoundError(id)
	}
	return nil
}

// AdjustStock adds delta to the stock of a product in its own transaction.
// A negative delta larger than the current stock fails with
// *domain.InsufficientStockError and changes nothing.
func (s *Store) AdjustStock(ctx context.Context, id string, delta int64) (domain.Product, error) {
	var product domain.Product
	err := s.WithinTx(ctx, func(tx *Tx) error {
		if err := tx.AdjustStock(ctx, id, delta); err != nil {
			return err
		}
		p, err := getProduct(ctx, tx.tx, id)
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	return product, err
}

func (s *Store) checkSupplier(ctx context.Context, supplierID *string) error {
	if supplierID == nil {
		return nil
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM suppliers WHERE id = ?`), *supplierID); err != nil {
		return fmt.Errorf("check supplier: %w", err)
	}
	if n == 0 {
		return domain.NewValidationError("supplier_id", "unknown supplier "+*supplierID)
	}
	return nil
}

// ProductsByIDs loads the distinct products among ids in id order. On
// Postgres the rows are locked FOR UPDATE until the transaction ends; the
// fixed order keeps concurrent checkouts from deadlocking on each other.
// Unknown ids are simply absent from the result.
func (t *Tx) ProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	distinct := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	if len(distinct) == 0 {
		return []domain.Product{}, nil
	}
	sort.Strings(distinct)

	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (?) ORDER BY id`
	if t.postgres {
		query += ` FOR UPDATE`
	}
	query, args, err := sqlx.In(query, distinct)
	if err != nil {
		return nil, fmt.Errorf("build product lookup: %w", err)
	}

	products := []domain.Product{}
	if err := t.tx.SelectContext(ctx, &products, t.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return products, nil
}

// DecrementStock subtracts quantity from the stored stock of a product with a
// single conditional update, so stock can never go below zero regardless of
// what was read earlier in the transaction.
func (t *Tx) DecrementStock(ctx context.Context, productID string, quantity int64) error {
	if quantity <= 0 {
		return domain.NewValidationError("quantity", "must be a positive integer")
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`UPDATE products
        SET stock_quantity = stock_quantity - ?, updated_at = ?
        WHERE id = ? AND stock_quantity >= ?`), quantity, t.now(), productID, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock of %s: %w", productID, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return t.stockFailure(ctx, productID, quantity)
	}
	return nil
}

// AdjustStock applies delta to the stored stock under the same
// never-below-zero condition as DecrementStock.
func (t *Tx) AdjustStock(ctx context.Context, productID string, delta int64) error {
	if delta == 0 {
		_, err := getProduct(ctx, t.tx, productID)
		return err
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`UPDATE products
        SET stock_quantity = stock_quantity + ?, updated_at = ?
        WHERE id = ? AND stock_quantity + ? >= 0`), delta, t.now(), productID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock of %s: %w", productID, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return t.stockFailure(ctx, productID, -delta)
	}
	return nil
}

// stockFailure explains why a conditional stock update matched no row.
func (t *Tx) stockFailure(ctx context.Context, productID string, requested int64) error {
	p, err := getProduct(ctx, t.tx, productID)
	if err != nil {
		return err
	}
	return domain.NewInsufficientStockError(p.ID, p.Name, requested, p.StockQuantity)
}
