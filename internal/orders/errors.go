package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrTxConflict menandai commit yang bentrok dengan transaksi lain;
	// di-retry dengan re-validasi, bukan dikembalikan mentah ke caller.
	ErrTxConflict = errors.New("transaction conflict")

	ErrEmptyOrder = errors.New("order must contain at least one item")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type NotFoundError struct {
	Kind string // "product" | "order" | "user"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

type AccessDeniedError struct {
	OrderID string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied to order %s", e.OrderID)
}

type InvalidStateError struct {
	OrderID string
	Status  Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("only pending or confirmed orders can be cancelled (order %s is %s)",
		e.OrderID, e.Status)
}
