package shipping

import (
	"context"
	"fmt"
	"strings"
)

// Address describes a postal address for rating and label purchase.
// Also embedded on the account row as the seller's ship-from address
type Address struct {
	Name    string `json:"name"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone"`
}

// Complete reports whether the address carries enough fields for the
// carrier API to rate against it
func (a Address) Complete() bool {
	return a.Street1 != "" && a.City != "" && a.Zip != "" && a.Country != ""
}

// Lines renders the address as newline-delimited free text for display
func (a Address) Lines() string {
	parts := make([]string, 0, 5)
	if a.Name != "" {
		parts = append(parts, a.Name)
	}
	parts = append(parts, a.Street1)
	if a.Street2 != "" {
		parts = append(parts, a.Street2)
	}
	parts = append(parts, strings.TrimSpace(fmt.Sprintf("%s, %s %s", a.City, a.State, a.Zip)))
	parts = append(parts, a.Country)
	return strings.Join(parts, "\n")
}

// Parcel describes the package dimensions of a listing, snapshotted onto
// the order at creation so later listing edits don't change rating inputs
type Parcel struct {
	WeightOz float64 `json:"weightOz"`
	LengthIn float64 `json:"lengthIn"`
	WidthIn  float64 `json:"widthIn"`
	HeightIn float64 `json:"heightIn"`
}

func (p Parcel) Complete() bool {
	return p.WeightOz > 0 && p.LengthIn > 0 && p.WidthIn > 0 && p.HeightIn > 0
}

// Rate is one shipping option quoted by the carrier API
type Rate struct {
	ID            string `json:"rateId"`
	Provider      string `json:"provider"`
	ServiceLevel  string `json:"serviceLevel"`
	AmountCents   int64  `json:"amountCents"`
	EstimatedDays int    `json:"estimatedDays"`
}

// Label is the result of purchasing a rate
type Label struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
	TrackingURL    string `json:"trackingUrl"`
	LabelURL       string `json:"labelUrl"`
}

// RateRequest carries everything the carrier API needs to quote rates
type RateRequest struct {
	From   Address `json:"from"`
	To     Address `json:"to"`
	Parcel Parcel  `json:"parcel"`
}

// Client defines the consumed contract of the carrier collaborator.
// An empty rate list is a valid "no rates" answer, not an error
type Client interface {
	GetRates(ctx context.Context, req RateRequest) ([]Rate, error)
	PurchaseLabel(ctx context.Context, rateID string) (*Label, error)
}
