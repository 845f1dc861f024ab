package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stockflow/domain"
)

const supplierColumns = `id, name, email, phone, created_at, updated_at`

func normalizeSupplier(sup domain.Supplier) domain.Supplier {
	sup.Name = strings.TrimSpace(sup.Name)
	sup.Email = strings.ToLower(strings.TrimSpace(sup.Email))
	sup.Phone = strings.TrimSpace(sup.Phone)
	return sup
}

// CreateSupplier returns domain.ErrDuplicate when the name is taken.
func (s *Store) CreateSupplier(ctx context.Context, sup domain.Supplier) (domain.Supplier, error) {
	sup = normalizeSupplier(sup)
	if err := domain.ValidateSupplier(sup); err != nil {
		return domain.Supplier{}, err
	}
	now := s.now()
	sup.ID = uuid.NewString()
	sup.CreatedAt, sup.UpdatedAt = now, now

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO suppliers (`+supplierColumns+`)
        VALUES (:id, :name, :email, :phone, :created_at, :updated_at)`, sup)
	if isUniqueViolation(err) {
		return domain.Supplier{}, fmt.Errorf("supplier %q: %w", sup.Name, domain.ErrDuplicate)
	}
	if err != nil {
		return domain.Supplier{}, fmt.Errorf("insert supplier: %w", err)
	}
	return sup, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.GetContext(ctx, &sup, s.db.Rebind(`SELECT `+supplierColumns+` FROM suppliers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Supplier{}, fmt.Errorf("supplier %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Supplier{}, fmt.Errorf("get supplier %s: %w", id, err)
	}
	return sup, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers := []domain.Supplier{}
	if err := s.db.SelectContext(ctx, &suppliers, `SELECT `+supplierColumns+` FROM suppliers ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	return suppliers, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, sup domain.Supplier) (domain.Supplier, error) {
	sup = normalizeSupplier(sup)
	if err := domain.ValidateSupplier(sup); err != nil {
		return domain.Supplier{}, err
	}
	sup.UpdatedAt = s.now()

	res, err := s.db.NamedExecContext(ctx, `UPDATE suppliers SET name = :name, email = :email, phone = :phone,
        updated_at = :updated_at WHERE id = :id`, sup)
	if isUniqueViolation(err) {
		return domain.Supplier{}, fmt.Errorf("supplier %q: %w", sup.Name, domain.ErrDuplicate)
	}
	if err != nil {
		return domain.Supplier{}, fmt.Errorf("update supplier %s: %w", sup.ID, err)
	}
	n, err := affected(res)
	if err != nil {
		return domain.Supplier{}, err
	}
	if n == 0 {
		return domain.Supplier{}, fmt.Errorf("supplier %s: %w", sup.ID, domain.ErrNotFound)
	}
	return s.GetSupplier(ctx, sup.ID)
}

// DeleteSupplier removes a supplier; its products keep existing without one.
func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM suppliers WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete supplier %s: %w", id, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("supplier %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
