package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/atelierhq/marketplace/shipping"

	"github.com/lithammer/shortuuid/v3"
)

// platformFeeBasisPoints is the marketplace's cut of the item subtotal.
// Shipping is passed through and excluded from the split
const platformFeeBasisPoints int64 = 1000

// Order describes one purchase of one listing. The economic fields are
// frozen at creation from the listing snapshot and never re-read, so later
// listing edits cannot change an order already placed
type Order struct {
	ID          string `json:"id" gorm:"primaryKey"`
	OrderNumber string `json:"orderNumber" gorm:"uniqueIndex"`
	BuyerID     string `json:"buyerId" gorm:"index"`
	SellerID    string `json:"sellerId" gorm:"index"`
	ListingID   string `json:"listingId" gorm:"index"`

	// Snapshot of the listing at checkout
	ListingTitle        string          `json:"listingTitle"`
	UnitPriceCents      int64           `json:"unitPriceCents"`
	Quantity            int             `json:"quantity"`
	ShippingCents       int64           `json:"shippingCents"`
	TotalCents          int64           `json:"totalCents"`
	PlatformFeeCents    int64           `json:"platformFeeCents"`
	SellerEarningsCents int64           `json:"sellerEarningsCents"`
	ReturnDays          *int            `json:"returnDays"`
	Parcel              shipping.Parcel `json:"parcel" gorm:"embedded;embeddedPrefix:parcel_"`

	// Opaque references from the payment collaborator
	PaymentRef  string `json:"-"`
	TransferRef string `json:"-"` // Set when seller earnings were released
	RefundRef   string `json:"-"` // Set when a refund was initiated

	// ShipTo is the structured destination used for rating and label
	// purchase; ShippingAddress is its free-text rendering, newline-delimited,
	// shown on the order page and frozen at checkout
	ShipTo          shipping.Address `json:"shipTo" gorm:"embedded;embeddedPrefix:ship_to_"`
	ShippingAddress string           `json:"shippingAddress"`

	Status       Status       `json:"status"`
	ReturnStatus ReturnStatus `json:"returnStatus"`
	ReturnReason string       `json:"returnReason"`

	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
	TrackingURL    string `json:"trackingUrl"`
	LabelURL       string `json:"labelUrl"`

	ShippedAt   *time.Time `json:"shippedAt"`
	DeliveredAt *time.Time `json:"deliveredAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TransitionError is returned when the requested state change is not
// reachable from the order's current state
type TransitionError struct {
	Current   string
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.Current, e.Attempted)
}

// IneligibleError is returned when a domain rule blocks the action even
// though the state machine would allow it
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return e.Reason
}

// NewOrderNumber generates the human-readable order number shown to both
// parties and printed on labels
func NewOrderNumber() string {
	return "AH-" + strings.ToUpper(shortuuid.New()[:10])
}

// PriceSplit computes the frozen economics of an order:
// total = unit x quantity + shipping, and the item subtotal splits into
// platform fee plus seller earnings. Shipping is excluded from the split
// and remitted against the label purchase
func PriceSplit(unitPriceCents int64, quantity int, shippingCents int64) (totalCents, feeCents, earningsCents int64) {
	subtotal := unitPriceCents * int64(quantity)
	totalCents = subtotal + shippingCents
	feeCents = subtotal * platformFeeBasisPoints / 10000
	earningsCents = subtotal - feeCents
	return
}

// MarkPaid applies the confirmed payment capture. Triggered externally by
// the payment collaborator, never by the buyer directly
func (o *Order) MarkPaid(paymentRef string, now time.Time) error {
	if o.Status != StatusPending {
		return &TransitionError{Current: string(o.Status), Attempted: string(StatusPaid)}
	}
	if len(paymentRef) > 0 {
		o.PaymentRef = paymentRef
	}
	o.Status = StatusPaid
	return nil
}

// ApplyLabel writes the carrier's tracking data onto the order
func (o *Order) ApplyLabel(label *shipping.Label) {
	o.Carrier = label.Carrier
	o.TrackingNumber = label.TrackingNumber
	o.TrackingURL = label.TrackingURL
	o.LabelURL = label.LabelURL
}

// MarkShipped moves a paid order to shipped. A tracking number must either
// be supplied here or already be present (label purchased earlier whose
// status flip is being retried)
func (o *Order) MarkShipped(label *shipping.Label, now time.Time) error {
	if o.Status != StatusPaid {
		return &TransitionError{Current: string(o.Status), Attempted: string(StatusShipped)}
	}
	if label != nil {
		o.ApplyLabel(label)
	}
	if len(o.TrackingNumber) == 0 {
		return &IneligibleError{Reason: "A tracking number is required to mark the order shipped"}
	}
	o.Status = StatusShipped
	if o.ShippedAt == nil {
		shippedAt := now
		o.ShippedAt = &shippedAt
	}
	return nil
}

// ConfirmDelivered is the buyer's deliberate acknowledgement, allowed from
// Paid or Shipped. This is the economically significant transition: the
// caller releases seller earnings after the commit succeeds
func (o *Order) ConfirmDelivered(now time.Time) error {
	if o.Status != StatusPaid && o.Status != StatusShipped {
		return &TransitionError{Current: string(o.Status), Attempted: string(StatusDelivered)}
	}
	o.Status = StatusDelivered
	deliveredAt := now
	o.DeliveredAt = &deliveredAt
	return nil
}

// Cancel interrupts an order before fulfillment. Irreversible
func (o *Order) Cancel(now time.Time) error {
	if o.Status != StatusPending && o.Status != StatusPaid {
		return &TransitionError{Current: string(o.Status), Attempted: string(StatusCancelled)}
	}
	o.Status = StatusCancelled
	return nil
}

// RequestReturn starts the nested return workflow. Only valid while the
// order is return-eligible (delivered, inside the window, no prior request)
func (o *Order) RequestReturn(reason string, now time.Time) error {
	eligibility := Evaluate(o, now)
	if !eligibility.Eligible {
		return &IneligibleError{Reason: eligibility.Reason}
	}
	o.ReturnStatus = ReturnRequested
	o.ReturnReason = reason
	return nil
}

// RespondReturn records the seller's (or admin's) decision on a requested
// return. Approved and Denied are terminal; refund initiation is delegated
// to the payment collaborator by the caller
func (o *Order) RespondReturn(approve bool, now time.Time) error {
	if o.Status != StatusDelivered {
		return &TransitionError{Current: string(o.Status), Attempted: "return decision"}
	}
	if o.ReturnStatus != ReturnRequested {
		return &TransitionError{Current: string(o.ReturnStatus), Attempted: "return decision"}
	}
	if approve {
		o.ReturnStatus = ReturnApproved
	} else {
		o.ReturnStatus = ReturnDenied
	}
	return nil
}

// ForceStatus sets an arbitrary status (support/dispute resolution),
// bypassing the trigger rules but keeping timestamps consistent
func (o *Order) ForceStatus(status Status, now time.Time) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown status %q", status)
	}
	// The return workflow only exists on delivered orders; forcing the
	// status away would strand the return record
	if o.ReturnStatus != ReturnNone && status != StatusDelivered {
		return fmt.Errorf("cannot set status %s on an order with a recorded return", status)
	}
	o.Status = status
	switch status {
	case StatusShipped:
		if o.ShippedAt == nil {
			shippedAt := now
			o.ShippedAt = &shippedAt
		}
	case StatusDelivered:
		if o.DeliveredAt == nil {
			deliveredAt := now
			o.DeliveredAt = &deliveredAt
		}
	}
	return nil
}
