package checkout

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// Validation rejections. They never change session state.
var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidQuantity      = errors.New("quantity must be between 1 and 10000")
	ErrItemNotFound         = errors.New("item is not in the cart")
	ErrCouponAlreadyApplied = errors.New("coupon is already applied")
	ErrCouponNotApplied     = errors.New("coupon is not applied")
	ErrPaymentProofMissing  = errors.New("payment proof has not been uploaded")
)

var (
	// ErrConfirmationPending is returned when a payment confirmation is
	// already in flight for the session.
	ErrConfirmationPending = errors.New("payment confirmation already in progress")
	// ErrConfirmationCancelled is delivered by a Confirmation that was
	// cancelled before the order was stored.
	ErrConfirmationCancelled = errors.New("payment confirmation cancelled")
)

// StateError is returned when an operation is not allowed in the session's
// current state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is not allowed in %s state", e.Op, e.State)
}

// IsRejection reports whether err is a user-facing validation rejection as
// opposed to an infrastructure failure.
func IsRejection(err error) bool {
	var stateErr *StateError
	switch {
	case errors.As(err, &stateErr),
		errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrCouponAlreadyApplied),
		errors.Is(err, ErrCouponNotApplied),
		errors.Is(err, ErrPaymentProofMissing),
		errors.Is(err, coupon.ErrInvalidCoupon):
		return true
	default:
		return false
	}
}
