package domain

import (
	"errors"
	"fmt"
)

// Failure kinds reported to callers.
const (
	KindValidation          = "ValidationError"
	KindProductNotFound     = "ProductNotFound"
	KindInsufficientStock   = "InsufficientStock"
	KindTransactionConflict = "TransactionConflict"
	KindNotFound            = "NotFound"
	KindConflict            = "Conflict"
	KindInternal            = "Internal"
)

var (
	// ErrNotFound is returned when a supplier, user or sale does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique attribute is already taken.
	ErrDuplicate = errors.New("record already exists")
)

// ValidationError is returned when input is rejected before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is allows errors.Is(err, &ValidationError{}).
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ProductNotFoundError is returned when an id does not resolve to a product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: id=%s", e.ProductID)
}

// Is allows errors.Is(err, &ProductNotFoundError{}).
func (e *ProductNotFoundError) Is(target error) bool {
	_, ok := target.(*ProductNotFoundError)
	return ok
}

// InsufficientStockError reports the product and the requested and available quantities.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): requested=%d, available=%d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

// Is allows errors.Is(err, &InsufficientStockError{}).
func (e *InsufficientStockError) Is(target error) bool {
	_, ok := target.(*InsufficientStockError)
	return ok
}

// TransactionConflictError wraps a storage-layer serialization failure, deadlock or timeout.
type TransactionConflictError struct {
	Attempts int
	Err      error
}

func (e *TransactionConflictError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("transaction conflict after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("transaction conflict: %v", e.Err)
}

func (e *TransactionConflictError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &TransactionConflictError{}).
func (e *TransactionConflictError) Is(target error) bool {
	_, ok := target.(*TransactionConflictError)
	return ok
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NewProductNotFoundError creates a ProductNotFoundError.
func NewProductNotFoundError(productID string) error {
	return &ProductNotFoundError{ProductID: productID}
}

// NewInsufficientStockError creates an InsufficientStockError.
func NewInsufficientStockError(productID, name string, requested, available int64) error {
	return &InsufficientStockError{ProductID: productID, Name: name, Requested: requested, Available: available}
}

// NewTransactionConflictError creates a TransactionConflictError.
func NewTransactionConflictError(err error) error {
	return &TransactionConflictError{Err: err}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsProductNotFoundError(err error) bool {
	var pnf *ProductNotFoundError
	return errors.As(err, &pnf)
}

func IsInsufficientStockError(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}

func IsTransactionConflictError(err error) bool {
	var tce *TransactionConflictError
	return errors.As(err, &tce)
}

// Kind classifies err into one of the failure kinds.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidationError(err):
		return KindValidation
	case IsProductNotFoundError(err):
		return KindProductNotFound
	case IsInsufficientStockError(err):
		return KindInsufficientStock
	case IsTransactionConflictError(err):
		return KindTransactionConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicate):
		return KindConflict
	default:
		return KindInternal
	}
}
