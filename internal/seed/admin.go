package seed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"stockflow/domain"
	"stockflow/internal/store"
)

// EnsureAdmin creates the administrator account unless a user with email exists.
func EnsureAdmin(ctx context.Context, st *store.Store, logger *zap.Logger, email, password string) error {
	_, err := st.UserByEmail(ctx, email)
	if err == nil {
		logger.Info("admin user already present", zap.String("email", email))
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin, err := st.CreateUser(ctx, domain.User{
		Name:     "Administrator",
		Email:    email,
		Password: string(hashed),
		Role:     domain.RoleAdmin,
		IsActive: true,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info("seeded admin user", zap.String("user_id", admin.ID), zap.String("email", admin.Email))
	return nil
}
