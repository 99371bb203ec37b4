package subscription

import (
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v3"
)

// Subscription describes one seller's enrollment in a plan. History is
// retained: every subscribe inserts a new row, and the row with the most
// recent StartDate is the user's current subscription
type Subscription struct {
	ID            string        `json:"id" gorm:"primaryKey"`
	UserID        string        `json:"userId" gorm:"index"`
	PlanID        string        `json:"planId"`
	PlanName      string        `json:"planName"` // Copied from the plan at subscribe time
	BillingPeriod BillingPeriod `json:"billingPeriod"`
	MaxListings   int           `json:"maxListings"` // Quota copied from the plan, not live-linked
	StartDate     time.Time     `json:"startDate"`
	EndDate       time.Time     `json:"endDate"`
	State         State         `json:"state"`
	AutoRenew     bool          `json:"autoRenew"`
	PaymentRef    string        `json:"-"` // Opaque reference from the payment collaborator
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// TransitionError is returned when a lifecycle operation is not reachable
// from the subscription's current state
type TransitionError struct {
	Op      string
	Current State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a subscription in state %s", e.Op, e.Current)
}

// NewFromPlan instantiates a subscription from the chosen plan. The quota
// and plan name are copied so later plan edits don't affect this subscriber
func NewFromPlan(userID string, plan Plan, period BillingPeriod, paymentRef string, now time.Time) *Subscription {
	return &Subscription{
		ID:            shortuuid.New(),
		UserID:        userID,
		PlanID:        plan.ID,
		PlanName:      plan.Name,
		BillingPeriod: period,
		MaxListings:   plan.MaxListings,
		StartDate:     now,
		EndDate:       nextPeriod(now, period),
		State:         StateActive,
		AutoRenew:     true,
		PaymentRef:    paymentRef,
	}
}

func nextPeriod(from time.Time, period BillingPeriod) time.Time {
	if period == BillingYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

// Resolve lazily advances the subscription against the clock: auto-renewing
// subscriptions roll their period forward, everything else past EndDate
// flips to Expired. Reads go through Resolve so a date-expired subscription
// is never reported as active. Returns true if the row changed
func (s *Subscription) Resolve(now time.Time) bool {
	changed := false
	for s.State == StateActive && s.AutoRenew && !now.Before(s.EndDate) {
		s.EndDate = nextPeriod(s.EndDate, s.BillingPeriod)
		changed = true
	}
	if (s.State == StateActive || s.State == StateCancelled) && !now.Before(s.EndDate) {
		s.State = StateExpired
		s.AutoRenew = false
		changed = true
	}
	return changed
}

// resolveAll resolves every row in place and returns the indexes of the
// rows that changed and still need persisting
func resolveAll(subs []Subscription, now time.Time) []int {
	changed := make([]int, 0, 1)
	for i := range subs {
		if subs[i].Resolve(now) {
			changed = append(changed, i)
		}
	}
	return changed
}

// HasAccess reports whether the subscriber currently retains access.
// Cancelled subscriptions keep access until EndDate: cancellation is
// "will not renew", not immediate revocation. Callers must Resolve first
func (s *Subscription) HasAccess(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.State != StateActive && s.State != StateCancelled {
		return false
	}
	return now.Before(s.EndDate)
}

// Cancel turns off auto-renewal. Access is retained until EndDate
func (s *Subscription) Cancel(now time.Time) error {
	s.Resolve(now)
	if s.State != StateActive {
		return &TransitionError{Op: "cancel", Current: s.State}
	}
	s.State = StateCancelled
	s.AutoRenew = false
	return nil
}

// Resume undoes a pending cancellation before expiry
func (s *Subscription) Resume(now time.Time) error {
	s.Resolve(now)
	if s.State != StateCancelled {
		return &TransitionError{Op: "resume", Current: s.State}
	}
	s.State = StateActive
	s.AutoRenew = true
	return nil
}

// ExtendBy pushes EndDate out by the given number of days (administrative
// goodwill/support operation). Bounded to 1-365 days per request and only
// valid while the subscriber retains access
func (s *Subscription) ExtendBy(days int, now time.Time) error {
	if days < 1 || days > 365 {
		return fmt.Errorf("extension must be between 1 and 365 days, got %d", days)
	}
	s.Resolve(now)
	if !s.HasAccess(now) {
		return &TransitionError{Op: "extend", Current: s.State}
	}
	s.EndDate = s.EndDate.AddDate(0, 0, days)
	return nil
}

// ForceExpire revokes access immediately regardless of EndDate. Irreversible:
// a new subscribe is required to regain access
func (s *Subscription) ForceExpire(now time.Time) error {
	s.Resolve(now)
	if s.State == StateExpired {
		return &TransitionError{Op: "expire", Current: s.State}
	}
	s.State = StateExpired
	s.AutoRenew = false
	return nil
}
