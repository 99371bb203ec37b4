package order

import (
	"fmt"
	"strings"
	"time"
)

// Eligibility is the derived answer to "may this order be returned right
// now". Computed, never stored: both the API layer and any display layer
// call Evaluate so they cannot drift apart
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
	DaysLeft int    `json:"daysLeft,omitempty"`
}

// deliveredTimestamp is the reference point for the return window. The
// explicit DeliveredAt is authoritative; rows created before the column
// existed fall back to UpdatedAt, then CreatedAt (legacy compatibility only)
func (o *Order) deliveredTimestamp() time.Time {
	if o.DeliveredAt != nil {
		return *o.DeliveredAt
	}
	if !o.UpdatedAt.IsZero() {
		return o.UpdatedAt
	}
	return o.CreatedAt
}

// Evaluate computes return eligibility for the order at the given time.
// Pure function over the order's snapshot fields
func Evaluate(o *Order, now time.Time) Eligibility {
	if o.Status != StatusDelivered {
		return Eligibility{Reason: "Order not yet delivered"}
	}
	if o.ReturnStatus != ReturnNone {
		return Eligibility{Reason: fmt.Sprintf("Return %s", strings.ToLower(string(o.ReturnStatus)))}
	}
	if o.ReturnDays == nil || *o.ReturnDays <= 0 {
		return Eligibility{Reason: "No returns accepted"}
	}

	daysSince := int(now.Sub(o.deliveredTimestamp()).Hours() / 24)
	if daysSince > *o.ReturnDays {
		return Eligibility{Reason: "Return window expired"}
	}

	daysLeft := *o.ReturnDays - daysSince
	return Eligibility{
		Eligible: true,
		Reason:   fmt.Sprintf("%d days left to return", daysLeft),
		DaysLeft: daysLeft,
	}
}
