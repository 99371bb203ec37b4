package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmitActivation(t *testing.T) {
	l := &Listing{
		ID:       "listing-1",
		SellerID: "seller-1",
		Status:   StatusInactive,
	}

	shouldSave, reason := admitActivation(l, 4, 5)
	assert.True(t, shouldSave)
	assert.Empty(t, reason)

	// The count observed inside the transaction is what gates admission,
	// so a stale pre-check can never let a second activation slip through
	shouldSave, reason = admitActivation(l, 5, 5)
	assert.False(t, shouldSave)
	assert.Equal(t, "Listing quota reached (5 of 5)", reason)

	shouldSave, reason = admitActivation(l, 6, 5)
	assert.False(t, shouldSave)
	assert.Equal(t, "Listing quota reached (6 of 5)", reason)
}

func TestAdmitActivationIdempotent(t *testing.T) {
	l := &Listing{
		ID:       "listing-1",
		SellerID: "seller-1",
		Status:   StatusActive,
	}

	// Re-activating an already active listing is a no-op, never a quota hit
	shouldSave, reason := admitActivation(l, 5, 5)
	assert.False(t, shouldSave)
	assert.Empty(t, reason)
}

func TestAdmitActivationZeroQuota(t *testing.T) {
	l := &Listing{
		ID:       "listing-1",
		SellerID: "seller-1",
		Status:   StatusInactive,
	}

	shouldSave, reason := admitActivation(l, 0, 0)
	assert.False(t, shouldSave)
	assert.Equal(t, "Listing quota reached (0 of 0)", reason)
}
