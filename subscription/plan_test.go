package subscription

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPlansFromFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "plans")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	filename := filepath.Join(dir, "plans.json")
	require.NoError(t, ioutil.WriteFile(filename, []byte(`[
		{
			"name": "Studio",
			"tier": "basic",
			"priceMonthlyCents": 900,
			"priceYearlyCents": 9000,
			"maxListings": 5,
			"active": true,
			"displayOrder": 1
		},
		{
			"name": "Gallery",
			"tier": "plus",
			"priceMonthlyCents": 2900,
			"priceYearlyCents": 29000,
			"maxListings": 25,
			"active": true,
			"displayOrder": 2
		}
	]`), 0644))

	plans, err := loadPlansFromFile(filename)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	assert.Equal(t, "Studio", plans[0].Name)
	assert.Equal(t, 5, plans[0].MaxListings)
	assert.Equal(t, "Gallery", plans[1].Name)
	assert.Equal(t, int64(29000), plans[1].PriceYearlyCents)
}

func TestLoadPlansFromFileErrors(t *testing.T) {
	_, err := loadPlansFromFile("does-not-exist.json")
	require.Error(t, err)

	dir, err := ioutil.TempDir("", "plans")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	filename := filepath.Join(dir, "broken.json")
	require.NoError(t, ioutil.WriteFile(filename, []byte(`{not json`), 0644))

	_, err = loadPlansFromFile(filename)
	require.Error(t, err)
}

func TestPriceFor(t *testing.T) {
	plan := Plan{
		PriceMonthlyCents: 2900,
		PriceYearlyCents:  29000,
	}
	assert.Equal(t, int64(2900), plan.PriceFor(BillingMonthly))
	assert.Equal(t, int64(29000), plan.PriceFor(BillingYearly))
}
