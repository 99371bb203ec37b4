package subscription

import (
	"encoding/json"
	"io/ioutil"

	extErrors "github.com/pkg/errors"
)

// Plan is a catalog entry that Subscriptions are instantiated from. The
// quota (MaxListings) is copied onto each subscription at subscribe time,
// so editing a plan never retroactively changes existing subscribers
type Plan struct {
	ID                string `json:"id" gorm:"primaryKey"`
	Name              string `json:"name" gorm:"uniqueIndex"`
	Tier              string `json:"tier"`
	Description       string `json:"description"`
	PriceMonthlyCents int64  `json:"priceMonthlyCents"`
	PriceYearlyCents  int64  `json:"priceYearlyCents"`
	MaxListings       int    `json:"maxListings"`
	Features          string `json:"features"`
	Active            bool   `json:"active"`
	DisplayOrder      int    `json:"displayOrder"`
}

// PriceFor returns the plan price in cents for the given billing period
func (p *Plan) PriceFor(period BillingPeriod) int64 {
	if period == BillingYearly {
		return p.PriceYearlyCents
	}
	return p.PriceMonthlyCents
}

// loadPlansFromFile will read from the plan JSON file to define what plans
// are offered. Seeded into the database on startup; afterwards the catalog
// is maintained through the admin API
func loadPlansFromFile(filename string) ([]Plan, error) {
	jsonBytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot open plans JSON file")
	}
	plans := make([]Plan, 0, 1)
	if err := json.Unmarshal(jsonBytes, &plans); err != nil {
		return nil, extErrors.Wrap(err, "Invalid plan JSON file")
	}
	return plans, nil
}
