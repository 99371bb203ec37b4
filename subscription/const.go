package subscription

// State is the custom type to define the current state of a subscription
type State string

// A subscription moves Active -> Cancelled -> Expired, or Active -> Expired.
// Cancelled means "will not renew" and retains access until EndDate;
// Expired means access is gone. A new subscribe is required after expiry
const (
	StateActive    State = "Active"
	StateCancelled       = "Cancelled"
	StateExpired         = "Expired"
)

// BillingPeriod is the custom type to define how long one paid period lasts
type BillingPeriod string

// Defining the billing periods offered for every plan
const (
	BillingMonthly BillingPeriod = "Monthly"
	BillingYearly                = "Yearly"
)

// ValidBillingPeriod reports whether the given value is an offered period
func ValidBillingPeriod(p BillingPeriod) bool {
	return p == BillingMonthly || p == BillingYearly
}
