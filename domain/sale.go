package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash            PaymentMethod = "Cash"
	PaymentCard            PaymentMethod = "Card"
	PaymentInstantTransfer PaymentMethod = "InstantTransfer"
)

// Point-of-sale terminals still send the legacy labels.
var paymentAliases = map[string]PaymentMethod{
	"cash":            PaymentCash,
	"dinheiro":        PaymentCash,
	"card":            PaymentCard,
	"cartão":          PaymentCard,
	"cartao":          PaymentCard,
	"instanttransfer": PaymentInstantTransfer,
	"pix":             PaymentInstantTransfer,
}

// ParsePaymentMethod resolves s to one of the accepted payment methods.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	if m, ok := paymentAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", NewValidationError("paymentMethod", fmt.Sprintf("unsupported payment method %q", s))
}

type SaleStatus string

const (
	SaleStatusPending  SaleStatus = "Pending"
	SaleStatusPaid     SaleStatus = "Paid"
	SaleStatusCanceled SaleStatus = "Canceled"
)

// LineItem is one product entry of a sale. Name and unit price are copied
// from the catalog when the sale is created.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// LineItems is stored as a single JSON document on the sale row.
type LineItems []LineItem

// Value implements driver.Valuer.
func (li LineItems) Value() (driver.Value, error) {
	if li == nil {
		li = LineItems{}
	}
	b, err := json.Marshal([]LineItem(li))
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (li *LineItems) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*li = LineItems{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan line items: unsupported type %T", src)
	}
	var items []LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("decode line items: %w", err)
	}
	*li = items
	return nil
}

// Total sums the line subtotals.
func (li LineItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range li {
		total = total.Add(item.Subtotal)
	}
	return total
}

type Sale struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	Items         LineItems       `db:"items" json:"items"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status        SaleStatus      `db:"status" json:"status"`
	PaymentMethod PaymentMethod   `db:"payment_method" json:"payment_method"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

var errTotalMismatch = errors.New("total amount does not match line subtotals")

// Verify checks that every line subtotal and the sale total are consistent.
func (s Sale) Verify() error {
	for i, item := range s.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("line %d: quantity must be at least 1", i)
		}
		if !item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)).Equal(item.Subtotal) {
			return fmt.Errorf("line %d: subtotal %s != %d x %s", i, item.Subtotal, item.Quantity, item.UnitPrice)
		}
	}
	if !s.Items.Total().Equal(s.TotalAmount) {
		return errTotalMismatch
	}
	return nil
}
