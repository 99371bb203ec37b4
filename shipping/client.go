package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// HTTPClientOptions contains the configuration for the carrier API client
type HTTPClientOptions struct {
	BaseURL string
	APIKey  string
	Logger  *zap.Logger
}

// HTTPClient talks to the carrier aggregator's REST API
type HTTPClient struct {
	HTTPClientOptions
	client *http.Client
}

var _ Client = &HTTPClient{}

// NewHTTPClient returns a carrier API client
func NewHTTPClient(option HTTPClientOptions) (*HTTPClient, error) {
	if len(option.BaseURL) == 0 {
		return nil, fmt.Errorf("empty BaseURL is invalid")
	}
	if len(option.APIKey) == 0 {
		return nil, fmt.Errorf("empty APIKey is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &HTTPClient{
		HTTPClientOptions: option,
		client: &http.Client{
			Timeout: time.Second * 15,
		},
	}, nil
}

type apiError struct {
	Message string `json:"message"`
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, into interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return extErrors.Wrap(err, "Cannot encode carrier request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return extErrors.Wrap(err, "Cannot construct carrier request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	res, err := c.client.Do(req)
	if err != nil {
		return extErrors.Wrap(err, "Carrier API is unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var apiErr apiError
		json.NewDecoder(res.Body).Decode(&apiErr)
		c.Logger.Error("Carrier API returned error",
			zap.Int("StatusCode", res.StatusCode),
			zap.String("Message", apiErr.Message),
		)
		return fmt.Errorf("Carrier API returned %d: %s", res.StatusCode, apiErr.Message)
	}

	if err := json.NewDecoder(res.Body).Decode(into); err != nil {
		return extErrors.Wrap(err, "Cannot decode carrier response")
	}
	return nil
}

type ratesResponse struct {
	Rates []Rate `json:"rates"`
}

// GetRates asks the carrier API for available rates. An empty slice means
// no carrier services the request, which callers must not treat as failure
func (c *HTTPClient) GetRates(ctx context.Context, rateReq RateRequest) ([]Rate, error) {
	var res ratesResponse
	if err := c.post(ctx, "/v1/rates", rateReq, &res); err != nil {
		return nil, err
	}
	if res.Rates == nil {
		return []Rate{}, nil
	}
	return res.Rates, nil
}

type purchaseRequest struct {
	RateID string `json:"rateId"`
}

// PurchaseLabel buys the given rate and returns tracking and label data
func (c *HTTPClient) PurchaseLabel(ctx context.Context, rateID string) (*Label, error) {
	if len(rateID) == 0 {
		return nil, fmt.Errorf("empty rateID is invalid")
	}
	var label Label
	if err := c.post(ctx, "/v1/labels", purchaseRequest{RateID: rateID}, &label); err != nil {
		return nil, err
	}
	if len(label.TrackingNumber) == 0 {
		return nil, fmt.Errorf("Carrier API returned a label without tracking number")
	}
	return &label, nil
}
