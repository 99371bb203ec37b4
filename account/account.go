package account

import (
	"github.com/atelierhq/marketplace/shipping"
)

// Account describes a user of the marketplace. Buyers and sellers share the
// same row; a seller is simply an account that lists and ships
type Account struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Email       string `json:"email" gorm:"uniqueIndex"`
	DisplayName string `json:"displayName"`
	Admin       bool   `json:"admin"` // Membership in the admin group, copied into Claims at login

	// StripeAccountID is the seller's connected account. Fund release on
	// delivery transfers earnings to this account
	StripeAccountID string `json:"-"`

	// ShipFrom is the seller's configured origin address, required before
	// the carrier API will quote rates for their orders
	ShipFrom shipping.Address `json:"shipFrom" gorm:"embedded;embeddedPrefix:ship_from_"`
}
