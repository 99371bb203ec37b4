package payment

import (
	"context"
	"fmt"

	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

// NewStripeClient initializes a Stripe API client with the given key
func NewStripeClient(key string) *client.API {
	sc := &client.API{}
	sc.Init(key, nil)
	return sc
}

// StripeOptions contains the configuration for the Stripe-backed Processor
type StripeOptions struct {
	StripeClient *client.API
	Logger       *zap.Logger
	Currency     string
}

// StripeProcessor implements Processor on top of Stripe: PaymentIntents for
// capture verification, Transfers for fund release, Refunds for returns
type StripeProcessor struct {
	StripeOptions
}

var _ Processor = &StripeProcessor{}

// NewStripeProcessor returns a Processor backed by Stripe
func NewStripeProcessor(option StripeOptions) (*StripeProcessor, error) {
	if option.StripeClient == nil {
		return nil, fmt.Errorf("nil StripeClient is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.Currency) == 0 {
		option.Currency = "usd"
	}
	return &StripeProcessor{
		StripeOptions: option,
	}, nil
}

func (p *StripeProcessor) VerifyPayment(ctx context.Context, paymentRef string, amountCents int64) error {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	pi, err := p.StripeClient.PaymentIntents.Get(paymentRef, params)
	if err != nil {
		return extErrors.Wrap(err, "Cannot fetch PaymentIntent from Stripe")
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return ErrPaymentNotConfirmed
	}
	if pi.AmountReceived < amountCents {
		p.Logger.Warn("PaymentIntent does not cover the expected amount",
			zap.String("PaymentRef", paymentRef),
			zap.Int64("Expected", amountCents),
			zap.Int64("Received", pi.AmountReceived),
		)
		return ErrPaymentNotConfirmed
	}
	return nil
}

func (p *StripeProcessor) ReleaseFunds(ctx context.Context, opt ReleaseOption) (string, error) {
	if len(opt.DestinationAccountID) == 0 {
		return "", fmt.Errorf("Seller has no payout account configured")
	}
	params := &stripe.TransferParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:        stripe.Int64(opt.AmountCents),
		Currency:      stripe.String(p.Currency),
		Destination:   stripe.String(opt.DestinationAccountID),
		TransferGroup: stripe.String(opt.OrderNumber),
	}
	t, err := p.StripeClient.Transfers.New(params)
	if err != nil {
		return "", extErrors.Wrap(err, "Cannot create Transfer on Stripe")
	}
	return t.ID, nil
}

func (p *StripeProcessor) Refund(ctx context.Context, paymentRef string, amountCents int64) (string, error) {
	params := &stripe.RefundParams{
		Params: stripe.Params{
			Context: ctx,
		},
		PaymentIntent: stripe.String(paymentRef),
		Amount:        stripe.Int64(amountCents),
	}
	r, err := p.StripeClient.Refunds.New(params)
	if err != nil {
		return "", extErrors.Wrap(err, "Cannot create Refund on Stripe")
	}
	return r.ID, nil
}
