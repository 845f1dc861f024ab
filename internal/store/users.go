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

const userColumns = `id, name, email, password, role, is_active, tax_id, phone, address, created_at, updated_at`

// CreateUser inserts u with its e-mail lower-cased. u.Password must already
// be hashed. A taken e-mail yields domain.ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Name == "" {
		return domain.User{}, domain.NewValidationError("name", "cannot be empty")
	}
	if u.Email == "" {
		return domain.User{}, domain.NewValidationError("email", "cannot be empty")
	}
	if u.Role == "" {
		u.Role = domain.RoleCustomer
	}

	now := s.now()
	u.ID = uuid.NewString()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES (:id, :name, :email, :password, :role, :is_active, :tax_id, :phone, :address, :created_at, :updated_at)`, u)
	if isUniqueViolation(err) {
		return domain.User{}, fmt.Errorf("user %s: %w", u.Email, domain.ErrDuplicate)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UserByEmail matches the e-mail case-insensitively.
func (s *Store) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	if err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at, email`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ProfileUpdate holds the fields a user may change about themselves. Nil
// fields are left untouched; Password must already be hashed.
type ProfileUpdate struct {
	Name     *string
	Phone    *string
	Address  *string
	TaxID    *string
	Password *string
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (domain.User, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return domain.User{}, domain.NewValidationError("name", "cannot be empty")
		}
		u.Name = name
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Address != nil {
		u.Address = strings.TrimSpace(*upd.Address)
	}
	if upd.TaxID != nil {
		u.TaxID = strings.TrimSpace(*upd.TaxID)
	}
	if upd.Password != nil {
		u.Password = *upd.Password
	}
	u.UpdatedAt = s.now()

	_, err = s.db.NamedExecContext(ctx, `UPDATE users SET name = :name, phone = :phone, address = :address,
        tax_id = :tax_id, password = :password, updated_at = :updated_at WHERE id = :id`, u)
	if err != nil {
		return domain.User{}, fmt.Errorf("update user %s: %w", id, err)
	}
	return u, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role domain.Role) (domain.User, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`), role, s.now(), id)
	if err != nil {
		return domain.User{}, fmt.Errorf("update role of %s: %w", id, err)
	}
	n, err := affected(res)
	if err != nil {
		return domain.User{}, err
	}
	if n == 0 {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return s.UserByID(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
