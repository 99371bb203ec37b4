package payment

import (
	"context"
	"errors"
)

// ErrPaymentNotConfirmed signals that the referenced payment exists but has
// not (or not fully) been captured. This is a domain outcome, not an
// infrastructure failure
var ErrPaymentNotConfirmed = errors.New("payment is not confirmed")

// ReleaseOption describes a fund release to the seller when the buyer
// confirms delivery
type ReleaseOption struct {
	OrderNumber          string
	AmountCents          int64
	DestinationAccountID string
}

// Processor defines the consumed contract of the payment collaborator.
// The opaque payment reference stored on orders and subscriptions is
// whatever the processor hands back at checkout
type Processor interface {
	// VerifyPayment confirms that the referenced payment has been captured
	// and covers at least amountCents. Returns ErrPaymentNotConfirmed when
	// the payment exists but is not settled
	VerifyPayment(ctx context.Context, paymentRef string, amountCents int64) error

	// ReleaseFunds finalizes the seller's earnings. Returns the opaque
	// transfer reference for bookkeeping
	ReleaseFunds(ctx context.Context, opt ReleaseOption) (string, error)

	// Refund reverses up to amountCents of the referenced payment and
	// returns the opaque refund reference
	Refund(ctx context.Context, paymentRef string, amountCents int64) (string, error)
}
