package listing

import (
	"time"

	"github.com/atelierhq/marketplace/shipping"
)

// Status is the custom type to define whether a listing is visible for sale
type Status string

// Defining the valid statuses of a listing. Only Active listings count
// against the seller's subscription quota and can be purchased
const (
	StatusActive   Status = "Active"
	StatusInactive        = "Inactive"
)

// Listing describes one artwork for sale. The economic and policy fields
// (price, shipping, return window, parcel) are snapshotted onto orders at
// checkout, so edits here never change orders already placed
type Listing struct {
	ID          string `json:"id" gorm:"primaryKey"`
	SellerID    string `json:"sellerId" gorm:"index"`
	Title       string `json:"title"`
	Description string `json:"description"`

	PriceCents    int64 `json:"priceCents"`
	ShippingCents int64 `json:"shippingCents"`

	// ReturnDays is the return window in days after delivery. nil means
	// the seller accepts no returns on this piece
	ReturnDays *int `json:"returnDays"`

	// Parcel dimensions feed carrier rating when the order ships
	Parcel shipping.Parcel `json:"parcel" gorm:"embedded;embeddedPrefix:parcel_"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
