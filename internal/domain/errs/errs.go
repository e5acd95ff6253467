// Package errs holds the error taxonomy shared by the catalog, payment and order domains.
// Callers branch on the sentinels with errors.Is and pull details out with errors.As.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
	ErrPaymentRejected   = errors.New("payment rejected")
	ErrEmptyOrder        = errors.New("empty order")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
)

// NotFound reports a missing entity of the given kind.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// Validation reports malformed construction input.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidStateError carries the state an entity was in and the state the operation needed.
type InvalidStateError struct {
	Entity   string
	ID       string
	Current  string
	Required string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %q is %s, requires %s", e.Entity, e.ID, e.Current, e.Required)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

type PaymentRejectedError struct {
	OrderID string
	Reason  string
	Cause   error
}

func (e *PaymentRejectedError) Error() string {
	return fmt.Sprintf("payment rejected for order %q: %s", e.OrderID, e.Reason)
}

// Unwrap exposes both the sentinel and the underlying cause, if any.
func (e *PaymentRejectedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrPaymentRejected}
	}
	return []error{ErrPaymentRejected, e.Cause}
}
