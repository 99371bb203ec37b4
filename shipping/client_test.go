package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testRateRequest() RateRequest {
	return RateRequest{
		From: Address{
			Name:    "Atelier Gallery",
			Street1: "500 Mission St",
			City:    "San Francisco",
			State:   "CA",
			Zip:     "94105",
			Country: "US",
		},
		To: Address{
			Name:    "Pat Collector",
			Street1: "1 Main St",
			City:    "Portland",
			State:   "OR",
			Zip:     "97201",
			Country: "US",
		},
		Parcel: Parcel{
			WeightOz: 32,
			LengthIn: 24,
			WidthIn:  18,
			HeightIn: 4,
		},
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPClientOptions{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return client, server
}

func TestGetRates(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rates", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req RateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "94105", req.From.Zip)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"rates": []Rate{
				{ID: "rate_1", Provider: "usps", ServiceLevel: "Priority", AmountCents: 1525, EstimatedDays: 3},
				{ID: "rate_2", Provider: "ups", ServiceLevel: "Ground", AmountCents: 1890, EstimatedDays: 5},
			},
		})
	}))

	rates, err := client.GetRates(context.Background(), testRateRequest())
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "rate_1", rates[0].ID)
	assert.Equal(t, int64(1525), rates[0].AmountCents)
}

func TestGetRatesEmptyIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"rates": nil,
		})
	}))

	rates, err := client.GetRates(context.Background(), testRateRequest())
	require.NoError(t, err)
	require.NotNil(t, rates)
	assert.Len(t, rates, 0)
}

func TestGetRatesUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "carrier timeout",
		})
	}))

	_, err := client.GetRates(context.Background(), testRateRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier timeout")
}

func TestPurchaseLabel(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/labels", r.URL.Path)

		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rate_1", req["rateId"])

		json.NewEncoder(w).Encode(Label{
			Carrier:        "usps",
			TrackingNumber: "9400100000000000000000",
			TrackingURL:    "https://tools.usps.com/go/TrackConfirmAction?tLabels=9400100000000000000000",
			LabelURL:       "https://labels.example.com/label_1.pdf",
		})
	}))

	label, err := client.PurchaseLabel(context.Background(), "rate_1")
	require.NoError(t, err)
	assert.Equal(t, "usps", label.Carrier)
	assert.Equal(t, "9400100000000000000000", label.TrackingNumber)
}

func TestPurchaseLabelRejectsMissingTracking(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Label{
			Carrier: "usps",
		})
	}))

	_, err := client.PurchaseLabel(context.Background(), "rate_1")
	require.Error(t, err)
}

func TestPurchaseLabelRejectsEmptyRateID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "should not reach the carrier API")
	}))

	_, err := client.PurchaseLabel(context.Background(), "")
	require.Error(t, err)
}

func TestAddressComplete(t *testing.T) {
	assert.True(t, testRateRequest().From.Complete())
	assert.False(t, Address{Street1: "1 Main St"}.Complete())
}

func TestAddressLines(t *testing.T) {
	lines := testRateRequest().To.Lines()
	assert.Equal(t, "Pat Collector\n1 Main St\nPortland, OR 97201\nUS", lines)
}

func TestParcelComplete(t *testing.T) {
	assert.True(t, testRateRequest().Parcel.Complete())
	assert.False(t, Parcel{WeightOz: 10}.Complete())
}
