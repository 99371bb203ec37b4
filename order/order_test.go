package order

import (
	"strings"
	"testing"
	"time"

	"github.com/atelierhq/marketplace/shipping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder() *Order {
	return &Order{
		ID:          "order-1",
		OrderNumber: NewOrderNumber(),
		BuyerID:     "buyer-1",
		SellerID:    "seller-1",
		Status:      StatusPending,
	}
}

func TestPriceSplit(t *testing.T) {
	// 2 x $150.00 + $20.00 shipping, 10% platform fee on the subtotal
	total, fee, earnings := PriceSplit(15000, 2, 2000)

	assert.Equal(t, int64(32000), total)
	assert.Equal(t, int64(3000), fee)
	assert.Equal(t, int64(27000), earnings)

	// Shipping passes through untouched
	assert.Equal(t, total-2000, fee+earnings)
}

func TestPriceSplitRoundsFeeDown(t *testing.T) {
	total, fee, earnings := PriceSplit(333, 1, 0)

	assert.Equal(t, int64(333), total)
	assert.Equal(t, int64(33), fee)
	assert.Equal(t, int64(300), earnings)
	assert.Equal(t, total, fee+earnings)
}

func TestNewOrderNumber(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		num := NewOrderNumber()
		assert.True(t, strings.HasPrefix(num, "AH-"))
		assert.False(t, seen[num])
		seen[num] = true
	}
}

func TestOrderHappyPath(t *testing.T) {
	now := time.Now()
	o := pendingOrder()

	require.NoError(t, o.MarkPaid("pi_123", now))
	assert.Equal(t, Status(StatusPaid), o.Status)
	assert.Equal(t, "pi_123", o.PaymentRef)

	require.NoError(t, o.MarkShipped(&shipping.Label{
		Carrier:        "usps",
		TrackingNumber: "9400100000000000000000",
	}, now))
	assert.Equal(t, Status(StatusShipped), o.Status)
	require.NotNil(t, o.ShippedAt)

	require.NoError(t, o.ConfirmDelivered(now))
	assert.Equal(t, Status(StatusDelivered), o.Status)
	require.NotNil(t, o.DeliveredAt)
}

func TestMarkPaidOnlyFromPending(t *testing.T) {
	now := time.Now()
	for _, status := range []Status{StatusPaid, StatusShipped, StatusDelivered, StatusCancelled} {
		o := pendingOrder()
		o.Status = status

		err := o.MarkPaid("pi_123", now)
		var transitionErr *TransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, string(status), transitionErr.Current)
	}
}

func TestMarkShippedBeforePayment(t *testing.T) {
	// Shipping an unpaid order is rejected outright, even with a label
	now := time.Now()
	o := pendingOrder()

	err := o.MarkShipped(&shipping.Label{
		Carrier:        "usps",
		TrackingNumber: "9400100000000000000000",
	}, now)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, string(StatusPending), transitionErr.Current)
	assert.Equal(t, string(StatusShipped), transitionErr.Attempted)
	assert.Equal(t, Status(StatusPending), o.Status)
	assert.Empty(t, o.TrackingNumber)
	assert.Nil(t, o.ShippedAt)
}

func TestMarkShippedRequiresTracking(t *testing.T) {
	now := time.Now()
	o := pendingOrder()
	o.Status = StatusPaid

	err := o.MarkShipped(nil, now)
	var ineligibleErr *IneligibleError
	require.ErrorAs(t, err, &ineligibleErr)
	assert.Equal(t, Status(StatusPaid), o.Status)
}

func TestMarkShippedRetryAfterLabelPurchase(t *testing.T) {
	// Tracking persisted earlier by a label purchase whose status flip did
	// not commit; retrying without a label only flips the status
	now := time.Now()
	o := pendingOrder()
	o.Status = StatusPaid
	o.Carrier = "usps"
	o.TrackingNumber = "9400100000000000000000"

	require.NoError(t, o.MarkShipped(nil, now))
	assert.Equal(t, Status(StatusShipped), o.Status)
	assert.Equal(t, "9400100000000000000000", o.TrackingNumber)
}

func TestConfirmDeliveredSkipsShipped(t *testing.T) {
	// The buyer received the piece even though the seller never marked it
	// shipped
	now := time.Now()
	o := pendingOrder()
	o.Status = StatusPaid

	require.NoError(t, o.ConfirmDelivered(now))
	assert.Equal(t, Status(StatusDelivered), o.Status)
	assert.Nil(t, o.ShippedAt)
	require.NotNil(t, o.DeliveredAt)
}

func TestConfirmDeliveredIsNotIdempotent(t *testing.T) {
	now := time.Now()
	o := pendingOrder()
	o.Status = StatusShipped

	require.NoError(t, o.ConfirmDelivered(now))
	firstDeliveredAt := *o.DeliveredAt

	err := o.ConfirmDelivered(now.Add(time.Hour))
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, firstDeliveredAt, *o.DeliveredAt)
}

func TestCancelRules(t *testing.T) {
	now := time.Now()

	allowed := []Status{StatusPending, StatusPaid}
	for _, status := range allowed {
		o := pendingOrder()
		o.Status = status
		require.NoError(t, o.Cancel(now))
		assert.Equal(t, Status(StatusCancelled), o.Status)
	}

	denied := []Status{StatusShipped, StatusDelivered, StatusCancelled}
	for _, status := range denied {
		o := pendingOrder()
		o.Status = status
		err := o.Cancel(now)
		var transitionErr *TransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, string(status), transitionErr.Current)
	}
}

func TestRespondReturn(t *testing.T) {
	now := time.Now()

	o := pendingOrder()
	o.Status = StatusDelivered
	o.ReturnStatus = ReturnRequested

	require.NoError(t, o.RespondReturn(true, now))
	assert.Equal(t, ReturnStatus(ReturnApproved), o.ReturnStatus)

	// Terminal: cannot decide twice
	err := o.RespondReturn(false, now)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, ReturnStatus(ReturnApproved), o.ReturnStatus)

	o = pendingOrder()
	o.Status = StatusDelivered
	o.ReturnStatus = ReturnRequested
	require.NoError(t, o.RespondReturn(false, now))
	assert.Equal(t, ReturnStatus(ReturnDenied), o.ReturnStatus)
}

func TestRespondReturnWithoutRequest(t *testing.T) {
	now := time.Now()
	o := pendingOrder()
	o.Status = StatusDelivered

	err := o.RespondReturn(true, now)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
}

func TestForceStatusSetsTimestamps(t *testing.T) {
	now := time.Now()
	o := pendingOrder()

	require.NoError(t, o.ForceStatus(StatusDelivered, now))
	assert.Equal(t, Status(StatusDelivered), o.Status)
	require.NotNil(t, o.DeliveredAt)

	// An already recorded timestamp is never overwritten
	firstDeliveredAt := *o.DeliveredAt
	require.NoError(t, o.ForceStatus(StatusDelivered, now.Add(time.Hour)))
	assert.Equal(t, firstDeliveredAt, *o.DeliveredAt)

	require.Error(t, o.ForceStatus(Status("Lost"), now))
}

func TestForceStatusKeepsReturnInvariant(t *testing.T) {
	now := time.Now()
	o := pendingOrder()
	o.Status = StatusDelivered
	o.ReturnStatus = ReturnRequested

	require.Error(t, o.ForceStatus(StatusPaid, now))
	assert.Equal(t, Status(StatusDelivered), o.Status)

	require.NoError(t, o.ForceStatus(StatusDelivered, now))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusPaid))
	assert.True(t, CanTransition(StatusPaid, StatusDelivered))
	assert.False(t, CanTransition(StatusPending, StatusShipped))
	assert.False(t, CanTransition(StatusDelivered, StatusShipped))
	assert.False(t, CanTransition(StatusCancelled, StatusPaid))

	assert.True(t, Terminal(StatusDelivered))
	assert.True(t, Terminal(StatusCancelled))
	assert.False(t, Terminal(StatusPaid))
	assert.False(t, Terminal(Status("Lost")))
}
