// Package domain defines the core business types of the inventory and point-of-sale system.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Description   string          `db:"description" json:"description"`
	PurchasePrice decimal.Decimal `db:"purchase_price" json:"purchase_price"`
	SalePrice     decimal.Decimal `db:"sale_price" json:"sale_price"`
	StockQuantity int64           `db:"stock_quantity" json:"stock_quantity"`
	MinimumStock  int64           `db:"minimum_stock" json:"minimum_stock"`
	SupplierID    *string         `db:"supplier_id" json:"supplier_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// BelowMinimum reports whether stock has fallen under the minimum threshold.
func (p Product) BelowMinimum() bool {
	return p.StockQuantity < p.MinimumStock
}

// ValidateProduct checks catalog invariants before a product is written.
func ValidateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("name", "cannot be empty")
	}
	if p.PurchasePrice.IsNegative() {
		return NewValidationError("purchase_price", "must be non-negative")
	}
	if p.SalePrice.IsNegative() {
		return NewValidationError("sale_price", "must be non-negative")
	}
	if p.StockQuantity < 0 {
		return NewValidationError("stock_quantity", "must be non-negative")
	}
	if p.MinimumStock < 0 {
		return NewValidationError("minimum_stock", "must be non-negative")
	}
	return nil
}
