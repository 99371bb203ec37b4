package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deliveredOrder(returnDays int, deliveredAt time.Time) *Order {
	days := returnDays
	return &Order{
		ID:          "order-1",
		Status:      StatusDelivered,
		ReturnDays:  &days,
		DeliveredAt: &deliveredAt,
	}
}

func TestEvaluateNotDelivered(t *testing.T) {
	now := time.Now()
	for _, status := range []Status{StatusPending, StatusPaid, StatusShipped, StatusCancelled} {
		o := &Order{Status: status}
		eligibility := Evaluate(o, now)
		assert.False(t, eligibility.Eligible)
		assert.Equal(t, "Order not yet delivered", eligibility.Reason)
	}
}

func TestEvaluateInsideWindow(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	o := deliveredOrder(14, now.Add(-4*24*time.Hour))

	eligibility := Evaluate(o, now)
	assert.True(t, eligibility.Eligible)
	assert.Equal(t, 10, eligibility.DaysLeft)
	assert.Equal(t, "10 days left to return", eligibility.Reason)
}

func TestEvaluateWindowExpired(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	o := deliveredOrder(14, now.Add(-15*24*time.Hour))

	eligibility := Evaluate(o, now)
	assert.False(t, eligibility.Eligible)
	assert.Equal(t, "Return window expired", eligibility.Reason)
}

func TestEvaluateLastDayOfWindow(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	o := deliveredOrder(14, now.Add(-14*24*time.Hour))

	eligibility := Evaluate(o, now)
	assert.True(t, eligibility.Eligible)
	assert.Equal(t, 0, eligibility.DaysLeft)
}

func TestEvaluateNoReturnsAccepted(t *testing.T) {
	now := time.Now()

	o := deliveredOrder(0, now)
	eligibility := Evaluate(o, now)
	assert.False(t, eligibility.Eligible)
	assert.Equal(t, "No returns accepted", eligibility.Reason)

	o = deliveredOrder(14, now)
	o.ReturnDays = nil
	eligibility = Evaluate(o, now)
	assert.False(t, eligibility.Eligible)
	assert.Equal(t, "No returns accepted", eligibility.Reason)
}

func TestEvaluateExistingReturn(t *testing.T) {
	now := time.Now()

	cases := []struct {
		status ReturnStatus
		reason string
	}{
		{ReturnRequested, "Return requested"},
		{ReturnApproved, "Return approved"},
		{ReturnDenied, "Return denied"},
	}
	for _, tc := range cases {
		o := deliveredOrder(14, now)
		o.ReturnStatus = tc.status
		eligibility := Evaluate(o, now)
		assert.False(t, eligibility.Eligible)
		assert.Equal(t, tc.reason, eligibility.Reason)
	}
}

func TestEvaluateLegacyTimestampFallback(t *testing.T) {
	// Rows from before DeliveredAt existed fall back to UpdatedAt, then
	// CreatedAt
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	days := 14

	o := &Order{
		Status:     StatusDelivered,
		ReturnDays: &days,
		CreatedAt:  now.Add(-30 * 24 * time.Hour),
		UpdatedAt:  now.Add(-3 * 24 * time.Hour),
	}
	eligibility := Evaluate(o, now)
	assert.True(t, eligibility.Eligible)
	assert.Equal(t, 11, eligibility.DaysLeft)

	o.UpdatedAt = time.Time{}
	eligibility = Evaluate(o, now)
	assert.False(t, eligibility.Eligible)
	assert.Equal(t, "Return window expired", eligibility.Reason)
}

func TestEvaluateMonotonic(t *testing.T) {
	// Once the window has expired it never becomes eligible again
	deliveredAt := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	o := deliveredOrder(7, deliveredAt)

	wasEligible := true
	for day := 0; day < 30; day++ {
		eligibility := Evaluate(o, deliveredAt.Add(time.Duration(day)*24*time.Hour))
		if !wasEligible {
			assert.False(t, eligibility.Eligible, "eligibility returned on day %d", day)
		}
		wasEligible = eligibility.Eligible
	}
}

func TestRequestReturnUsesEligibility(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	o := deliveredOrder(14, now.Add(-2*24*time.Hour))
	require.NoError(t, o.RequestReturn("Arrived damaged", now))
	assert.Equal(t, ReturnStatus(ReturnRequested), o.ReturnStatus)
	assert.Equal(t, "Arrived damaged", o.ReturnReason)

	// A second request is blocked by the recorded one
	err := o.RequestReturn("Changed my mind", now)
	var ineligibleErr *IneligibleError
	require.ErrorAs(t, err, &ineligibleErr)
	assert.Equal(t, "Return requested", ineligibleErr.Reason)

	o = deliveredOrder(7, now.Add(-10*24*time.Hour))
	err = o.RequestReturn("Too late", now)
	require.ErrorAs(t, err, &ineligibleErr)
	assert.Equal(t, "Return window expired", ineligibleErr.Reason)
}
