package order

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that map failures onto a transport
// status.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindDependency Kind = "dependency"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrAddressNotFound      = errors.New("address not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrForbidden            = errors.New("access denied")
	ErrInvalidTransition    = errors.New("invalid order status transition")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentNotPending    = errors.New("payment is not pending")
	ErrRequestInProgress    = errors.New("order request is already in progress")
	ErrDependency           = errors.New("dependency failure")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrEmptyCart, KindValidation},
	{ErrInvalidPaymentMethod, KindValidation},
	{ErrInvalidStatus, KindValidation},
	{ErrAddressNotFound, KindNotFound},
	{ErrOrderNotFound, KindNotFound},
	{ErrPaymentNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrInsufficientStock, KindConflict},
	{ErrInvalidTransition, KindConflict},
	{ErrPaymentNotPending, KindConflict},
	{ErrRequestInProgress, KindConflict},
	{ErrDependency, KindDependency},
}

// KindOf returns the kind of err. Errors that carry none of the package
// sentinels are dependency failures.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindDependency
}

func dependency(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDependency, op, err)
}

func invalidTransition(from, to Status) error {
	return fmt.Errorf("%w: cannot change status from %s to %s", ErrInvalidTransition, from, to)
}

func invalidStatus(s string) error {
	return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}
