package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPlan = Plan{
	ID:                "plan-1",
	Name:              "Gallery",
	Tier:              "plus",
	PriceMonthlyCents: 2900,
	PriceYearlyCents:  29000,
	MaxListings:       25,
	Active:            true,
}

func TestNewFromPlan(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	sub := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_123", now)

	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "user-1", sub.UserID)
	assert.Equal(t, "plan-1", sub.PlanID)
	assert.Equal(t, "Gallery", sub.PlanName)
	assert.Equal(t, 25, sub.MaxListings)
	assert.Equal(t, State(StateActive), sub.State)
	assert.True(t, sub.AutoRenew)
	assert.Equal(t, now.AddDate(0, 1, 0), sub.EndDate)

	yearly := NewFromPlan("user-1", testPlan, BillingYearly, "pi_456", now)
	assert.Equal(t, now.AddDate(1, 0, 0), yearly.EndDate)
}

func TestResolveRenewsActivePeriods(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_123", start)

	// Three and a half months later the period has rolled forward without
	// any write in between
	now := start.AddDate(0, 3, 15)
	changed := sub.Resolve(now)

	assert.True(t, changed)
	assert.Equal(t, State(StateActive), sub.State)
	assert.Equal(t, start.AddDate(0, 4, 0), sub.EndDate)
	assert.True(t, sub.HasAccess(now))

	// Resolving again at the same instant is a no-op
	assert.False(t, sub.Resolve(now))
}

func TestResolveExpiresCancelled(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_123", start)
	require.NoError(t, sub.Cancel(start.AddDate(0, 0, 10)))

	// Still has access inside the paid period
	beforeEnd := start.AddDate(0, 0, 20)
	assert.False(t, sub.Resolve(beforeEnd))
	assert.True(t, sub.HasAccess(beforeEnd))

	// Past EndDate the cancelled subscription expires instead of renewing
	afterEnd := start.AddDate(0, 2, 0)
	assert.True(t, sub.Resolve(afterEnd))
	assert.Equal(t, State(StateExpired), sub.State)
	assert.False(t, sub.HasAccess(afterEnd))
}

func TestCancelAndResume(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 5)

	sub := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_123", start)

	require.NoError(t, sub.Cancel(now))
	assert.Equal(t, State(StateCancelled), sub.State)
	assert.False(t, sub.AutoRenew)
	assert.True(t, sub.HasAccess(now))

	// Cancelling twice is an invalid transition
	err := sub.Cancel(now)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, State(StateCancelled), transitionErr.Current)

	require.NoError(t, sub.Resume(now))
	assert.Equal(t, State(StateActive), sub.State)
	assert.True(t, sub.AutoRenew)

	// Resume only applies to a pending cancellation
	err = sub.Resume(now)
	require.ErrorAs(t, err, &transitionErr)
}

func TestResumeAfterExpiryFails(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_123", start)
	require.NoError(t, sub.Cancel(start))

	// The lapse happens lazily inside Resume via Resolve
	err := sub.Resume(start.AddDate(0, 3, 0))
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, State(StateExpired), transitionErr.Current)
}

func TestExtendBy(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 5)

	sub := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_123", start)
	originalEnd := sub.EndDate

	require.NoError(t, sub.ExtendBy(30, now))
	assert.Equal(t, originalEnd.AddDate(0, 0, 30), sub.EndDate)

	// Bounds are enforced before any state change
	require.Error(t, sub.ExtendBy(0, now))
	require.Error(t, sub.ExtendBy(366, now))
	assert.Equal(t, originalEnd.AddDate(0, 0, 30), sub.EndDate)

	// Cancelled but not yet lapsed still accepts goodwill extensions
	require.NoError(t, sub.Cancel(now))
	require.NoError(t, sub.ExtendBy(7, now))
}

func TestExtendByWithoutAccess(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_123", start)
	require.NoError(t, sub.ForceExpire(start))

	err := sub.ExtendBy(30, start)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, State(StateExpired), transitionErr.Current)
}

func TestForceExpire(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 0, 5)

	sub := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_123", start)
	originalEnd := sub.EndDate

	require.NoError(t, sub.ForceExpire(now))
	assert.Equal(t, State(StateExpired), sub.State)
	assert.False(t, sub.AutoRenew)
	assert.False(t, sub.HasAccess(now))

	// EndDate is kept for the record, access is gone regardless
	assert.Equal(t, originalEnd, sub.EndDate)

	// Expiring twice is an invalid transition
	err := sub.ForceExpire(now)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
}

func TestResolveAllBeforeListing(t *testing.T) {
	// History rows are resolved before being reported: a lapsed
	// non-renewing row must come back expired, not active
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.AddDate(0, 2, 0)

	lapsed := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_123", start)
	lapsed.AutoRenew = false
	renewing := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_456", start)
	current := NewFromPlan("user-1", testPlan, BillingMonthly, "pi_789", now)

	rows := []Subscription{*current, *renewing, *lapsed}
	changed := resolveAll(rows, now)

	assert.Equal(t, []int{1, 2}, changed)
	assert.Equal(t, State(StateActive), rows[0].State)
	assert.Equal(t, State(StateActive), rows[1].State)
	assert.Equal(t, start.AddDate(0, 3, 0), rows[1].EndDate)
	assert.Equal(t, State(StateExpired), rows[2].State)
	assert.False(t, rows[2].HasAccess(now))
}

func TestHasAccessNilSafe(t *testing.T) {
	var sub *Subscription
	assert.False(t, sub.HasAccess(time.Now()))
}
