package domain

import (
	"strings"
	"time"
)

type Supplier struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ValidateSupplier requires a name and an email.
func ValidateSupplier(s Supplier) error {
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError("name", "cannot be empty")
	}
	if strings.TrimSpace(s.Email) == "" {
		return NewValidationError("email", "cannot be empty")
	}
	return nil
}
