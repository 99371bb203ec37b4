package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atelierhq/marketplace/account"
	"github.com/atelierhq/marketplace/auth"
	"github.com/atelierhq/marketplace/listing"
	"github.com/atelierhq/marketplace/notification"
	"github.com/atelierhq/marketplace/payment"
	resp "github.com/atelierhq/marketplace/response"
	"github.com/atelierhq/marketplace/shipping"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth           *auth.Auth
	OrderManager   *Manager
	ListingManager *listing.Manager
	AccountManager *account.Manager
	Carrier        shipping.Client
	Processor      payment.Processor
	Notifier       notification.Notifier
	Logger         *zap.Logger
}

// Service is the order API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the order API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.OrderManager == nil {
		return nil, fmt.Errorf("nil OrderManager is invalid")
	}
	if option.ListingManager == nil {
		return nil, fmt.Errorf("nil ListingManager is invalid")
	}
	if option.AccountManager == nil {
		return nil, fmt.Errorf("nil AccountManager is invalid")
	}
	if option.Carrier == nil {
		return nil, fmt.Errorf("nil Carrier is invalid")
	}
	if option.Processor == nil {
		return nil, fmt.Errorf("nil Processor is invalid")
	}
	if option.Notifier == nil {
		return nil, fmt.Errorf("nil Notifier is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// canView restricts order visibility to its two parties plus admins
func canView(o *Order, claims *auth.Claims) bool {
	return o.BuyerID == claims.ID || o.SellerID == claims.ID || claims.Admin
}

// domainError maps the model's transition errors to API errors
func domainError(err error) *resp.Error {
	var transitionErr *TransitionError
	var ineligibleErr *IneligibleError
	switch {
	case errors.As(err, &transitionErr):
		return resp.ErrInvalidTransition(transitionErr.Current)
	case errors.As(err, &ineligibleErr):
		return resp.ErrIneligible(ineligibleErr.Reason)
	default:
		return resp.ErrBadRequest().AddMessages(err.Error())
	}
}

// NewOrderRequest is the model of the buyer's checkout request. PaymentRef
// is the opaque reference from the authorized (not yet captured) payment
type NewOrderRequest struct {
	ListingID  string `json:"listingId" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,gte=1"`
	PaymentRef string `json:"paymentRef" validate:"required"`

	Name    string `json:"name" validate:"required"`
	Street1 string `json:"street1" validate:"required"`
	Street2 string `json:"street2"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone   string `json:"phone"`
}

func (s *Service) newOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("BuyerID", claims.ID))

	var req NewOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid checkout fields"))
		return
	}

	l, err := s.ListingManager.GetByID(ctx, req.ListingID)
	if err != nil {
		logger.Error("Unable to query listing",
			zap.String("ListingID", req.ListingID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create Order"))
		return
	}
	if l == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
		return
	}
	if l.Status != listing.StatusActive {
		resp.WriteError(w, r, resp.ErrIneligible("Listing is not active"))
		return
	}
	if l.SellerID == claims.ID {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Cannot purchase your own listing"))
		return
	}

	// Freeze the economics and the listing snapshot at this instant. Later
	// edits to the listing never reach an order already placed
	total, fee, earnings := PriceSplit(l.PriceCents, req.Quantity, l.ShippingCents)

	var returnDays *int
	if l.ReturnDays != nil {
		days := *l.ReturnDays
		returnDays = &days
	}

	shipTo := shipping.Address{
		Name:    req.Name,
		Street1: req.Street1,
		Street2: req.Street2,
		City:    req.City,
		State:   req.State,
		Zip:     req.Zip,
		Country: req.Country,
		Phone:   req.Phone,
	}

	o := Order{
		ID:          uuid.New().String(),
		OrderNumber: NewOrderNumber(),
		BuyerID:     claims.ID,
		SellerID:    l.SellerID,
		ListingID:   l.ID,

		ListingTitle:        l.Title,
		UnitPriceCents:      l.PriceCents,
		Quantity:            req.Quantity,
		ShippingCents:       l.ShippingCents,
		TotalCents:          total,
		PlatformFeeCents:    fee,
		SellerEarningsCents: earnings,
		ReturnDays:          returnDays,
		Parcel:              l.Parcel,

		PaymentRef:      req.PaymentRef,
		ShipTo:          shipTo,
		ShippingAddress: shipTo.Lines(),

		Status: StatusPending,
	}

	if err := s.OrderManager.Create(ctx, &o); err != nil {
		logger.Error("Unable to create order",
			zap.String("ListingID", l.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create Order"))
		return
	}

	resp.WriteResponse(w, r, o)
}

func (s *Service) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	opt := ListOption{
		Limit: 50,
	}
	if r.URL.Query().Get("role") == "seller" {
		opt.SellerID = claims.ID
	} else {
		opt.BuyerID = claims.ID
	}
	if status := Status(r.URL.Query().Get("status")); len(status) > 0 {
		if !ValidStatus(status) {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Unknown status filter"))
			return
		}
		opt.Status = status
	}

	results, err := s.OrderManager.List(ctx, opt)
	if err != nil {
		s.Logger.Error("Unable to list orders",
			zap.String("UserID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of orders"))
		return
	}
	resp.WriteResponse(w, r, results)
}

// Detail is the single-order response: the row plus the return eligibility
// computed at read time, so clients never derive the window themselves
type Detail struct {
	Order             *Order      `json:"order"`
	ReturnEligibility Eligibility `json:"returnEligibility"`
}

func (s *Service) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	orderID := chi.URLParam(r, "id")

	o, err := s.OrderManager.GetByID(ctx, orderID)
	if err != nil {
		s.Logger.Error("Unable to query order",
			zap.String("OrderID", orderID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the order"))
		return
	}
	if o == nil || !canView(o, claims) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find order with specific ID"))
		return
	}

	resp.WriteResponse(w, r, Detail{
		Order:             o,
		ReturnEligibility: Evaluate(o, time.Now()),
	})
}

// ConfirmPaymentRequest optionally replaces the payment reference captured
// at checkout (re-tried checkouts produce a fresh reference)
type ConfirmPaymentRequest struct {
	PaymentRef string `json:"paymentRef"`
}

func (s *Service) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("OrderID", orderID),
	)

	var req ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	o, err := s.OrderManager.GetByID(ctx, orderID)
	if err != nil {
		logger.Error("Unable to query order",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to confirm payment"))
		return
	}
	if o == nil || (o.BuyerID != claims.ID && !claims.Admin) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find order with specific ID"))
		return
	}

	paymentRef := req.PaymentRef
	if len(paymentRef) == 0 {
		paymentRef = o.PaymentRef
	}
	if len(paymentRef) == 0 {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("No payment reference on file"))
		return
	}

	// Verify against the processor before touching the order. The capture
	// must cover the frozen order total
	if err := s.Processor.VerifyPayment(ctx, paymentRef, o.TotalCents); err != nil {
		if errors.Is(err, payment.ErrPaymentNotConfirmed) {
			resp.WriteError(w, r, resp.ErrIneligible("Payment is not confirmed"))
			return
		}
		logger.Error("Unable to verify payment",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUpstream().AddMessages("Unable to verify payment"))
		return
	}

	now := time.Now()
	lambdaResult := s.OrderManager.LambdaUpdate(ctx, orderID, func(current *Order, desired *Order) (shouldSave bool, returnValue interface{}) {
		if current == nil || !canView(current, claims) {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find order with specific ID")
			return
		}
		if err := desired.MarkPaid(paymentRef, now); err != nil {
			returnValue = domainError(err)
			return
		}
		shouldSave = true
		return
	})
	updated := s.writeLambdaOutcome(w, r, logger, lambdaResult, "Unable to confirm payment")
	if updated == nil {
		return
	}
	o = updated

	s.Notifier.Emit(ctx, notification.Event{
		Type:        notification.OrderPaid,
		RecipientID: o.SellerID,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
	})

	resp.WriteResponse(w, r, o)
}

// MarkShippedRequest carries manually entered tracking. All fields may be
// empty when retrying the status flip after an earlier label purchase
// already persisted tracking data
type MarkShippedRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
	TrackingURL    string `json:"trackingUrl"`
}

func (s *Service) markShipped(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("OrderID", orderID),
	)

	var req MarkShippedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	var label *shipping.Label
	if len(req.TrackingNumber) > 0 {
		label = &shipping.Label{
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
			TrackingURL:    req.TrackingURL,
		}
	}

	now := time.Now()
	lambdaResult := s.OrderManager.LambdaUpdate(ctx, orderID, func(current *Order, desired *Order) (shouldSave bool, returnValue interface{}) {
		if current == nil || (current.SellerID != claims.ID && !claims.Admin) {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find order with specific ID")
			return
		}
		if err := desired.MarkShipped(label, now); err != nil {
			returnValue = domainError(err)
			return
		}
		shouldSave = true
		return
	})
	o := s.writeLambdaOutcome(w, r, logger, lambdaResult, "Unable to mark order shipped")
	if o == nil {
		return
	}

	s.notifyShipped(ctx, o)

	resp.WriteResponse(w, r, o)
}

func (s *Service) notifyShipped(ctx context.Context, o *Order) {
	s.Notifier.Emit(ctx, notification.Event{
		Type:        notification.OrderShipped,
		RecipientID: o.BuyerID,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Data: map[string]string{
			"carrier":        o.Carrier,
			"trackingNumber": o.TrackingNumber,
			"trackingUrl":    o.TrackingURL,
		},
	})
}

// getRates quotes shipping options for a paid order. Read-only against the
// carrier API; an empty list is a valid answer
func (s *Service) getRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("OrderID", orderID),
	)

	o, err := s.OrderManager.GetByID(ctx, orderID)
	if err != nil {
		logger.Error("Unable to query order",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to get rates"))
		return
	}
	if o == nil || (o.SellerID != claims.ID && !claims.Admin) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find order with specific ID"))
		return
	}
	if o.Status != StatusPaid {
		resp.WriteError(w, r, resp.ErrInvalidTransition(string(o.Status)).AddMessages("Rates are only available for paid orders"))
		return
	}

	acct, err := s.AccountManager.GetByID(ctx, o.SellerID)
	if err != nil || acct == nil {
		logger.Error("Unable to query seller account",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to get rates"))
		return
	}
	if !acct.ShipFrom.Complete() {
		resp.WriteError(w, r, resp.ErrIneligible("Ship-from address is not configured"))
		return
	}
	if !o.Parcel.Complete() {
		resp.WriteError(w, r, resp.ErrIneligible("Listing has no package dimensions"))
		return
	}
	if !o.ShipTo.Complete() {
		resp.WriteError(w, r, resp.ErrIneligible("Shipping address is incomplete"))
		return
	}

	rates, err := s.Carrier.GetRates(ctx, shipping.RateRequest{
		From:   acct.ShipFrom,
		To:     o.ShipTo,
		Parcel: o.Parcel,
	})
	if err != nil {
		logger.Error("Carrier API returned error",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUpstream().AddMessages("Unable to get rates from carrier"))
		return
	}

	resp.WriteResponse(w, r, rates)
}

// PurchaseLabelRequest selects one previously quoted rate
type PurchaseLabelRequest struct {
	RateID string `json:"rateId" validate:"required"`
}

func (s *Service) purchaseLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("OrderID", orderID),
	)

	var req PurchaseLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("rateId is required"))
		return
	}

	o, err := s.OrderManager.GetByID(ctx, orderID)
	if err != nil {
		logger.Error("Unable to query order",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to purchase label"))
		return
	}
	if o == nil || (o.SellerID != claims.ID && !claims.Admin) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find order with specific ID"))
		return
	}
	if o.Status != StatusPaid {
		resp.WriteError(w, r, resp.ErrInvalidTransition(string(o.Status)).AddMessages("Labels can only be purchased for paid orders"))
		return
	}

	label, err := s.Carrier.PurchaseLabel(ctx, req.RateID)
	if err != nil {
		logger.Error("Carrier API returned error",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUpstream().AddMessages("Unable to purchase label from carrier"))
		return
	}

	logger = logger.With(zap.String("TrackingNumber", label.TrackingNumber))

	now := time.Now()
	lambdaResult := s.OrderManager.LambdaUpdate(ctx, orderID, func(current *Order, desired *Order) (shouldSave bool, returnValue interface{}) {
		if current == nil || (current.SellerID != claims.ID && !claims.Admin) {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find order with specific ID")
			return
		}
		if err := desired.MarkShipped(label, now); err != nil {
			returnValue = domainError(err)
			return
		}
		shouldSave = true
		return
	})

	// The label is already bought at this point. If the status flip did not
	// commit, persist the tracking data standalone so a later mark-shipped
	// only retries the transition instead of buying a second label
	if lambdaResult.ReturnValue != nil {
		if err := s.OrderManager.SaveTracking(ctx, orderID, label); err != nil {
			logger.Error("Unable to persist tracking after rejected transition",
				zap.Error(err),
			)
		}
		respErr := lambdaResult.ReturnValue.(*resp.Error)
		resp.WriteError(w, r, respErr.AddMessages("Label was purchased and tracking was saved"))
		return
	}
	if lambdaResult.TxError != nil {
		logger.Error("Unable to update order after label purchase",
			zap.Error(lambdaResult.TxError),
		)
		if err := s.OrderManager.SaveTracking(ctx, orderID, label); err != nil {
			logger.Error("Unable to persist tracking after failed transaction",
				zap.Error(err),
			)
		}
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Label was purchased but the order could not be updated, mark the order shipped to retry"))
		return
	}

	o = lambdaResult.Order
	s.notifyShipped(ctx, o)

	resp.WriteResponse(w, r, o)
}

func (s *Service) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("OrderID", orderID),
	)

	now := time.Now()
	lambdaResult := s.OrderManager.LambdaUpdate(ctx, orderID, func(current *Order, desired *Order) (shouldSave bool, returnValue interface{}) {
		if current == nil || (current.BuyerID != claims.ID && !claims.Admin) {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find order with specific ID")
			return
		}
		if err := desired.ConfirmDelivered(now); err != nil {
			returnValue = domainError(err)
			return
		}
		shouldSave = true
		return
	})
	o := s.writeLambdaOutcome(w, r, logger, lambdaResult, "Unable to confirm delivery")
	if o == nil {
		return
	}

	// Delivered is committed, so the release happens at most once. A failure
	// past this point must not undo the transition, the earnings release is
	// retried out-of-band against the recorded transfer gap
	s.releaseEarnings(ctx, logger, o)

	s.Notifier.Emit(ctx, notification.Event{
		Type:        notification.OrderDelivered,
		RecipientID: o.SellerID,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
	})

	resp.WriteResponse(w, r, o)
}

// releaseEarnings pays out the frozen seller earnings exactly once per
// order, keyed on the recorded transfer reference
func (s *Service) releaseEarnings(ctx context.Context, logger *zap.Logger, o *Order) {
	if len(o.TransferRef) > 0 {
		return
	}

	acct, err := s.AccountManager.GetByID(ctx, o.SellerID)
	if err != nil || acct == nil {
		logger.Error("Unable to query seller account for earnings release",
			zap.Error(err),
		)
		return
	}
	if len(acct.StripeAccountID) == 0 {
		logger.Error("Seller has no payout account configured",
			zap.String("SellerID", o.SellerID),
		)
		return
	}

	transferRef, err := s.Processor.ReleaseFunds(ctx, payment.ReleaseOption{
		OrderNumber:          o.OrderNumber,
		AmountCents:          o.SellerEarningsCents,
		DestinationAccountID: acct.StripeAccountID,
	})
	if err != nil {
		// fail through: as long as database state is consistent, the payout
		// can be reconciled from orders delivered without a transfer reference
		logger.Error("Unable to release seller earnings",
			zap.Error(err),
		)
		return
	}
	o.TransferRef = transferRef
	if err := s.OrderManager.SaveTransfer(ctx, o.ID, transferRef); err != nil {
		logger.Error("Unable to record transfer reference",
			zap.String("TransferRef", transferRef),
			zap.Error(err),
		)
	}
}

func (s *Service) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("OrderID", orderID),
	)

	now := time.Now()
	var wasPaid bool
	lambdaResult := s.OrderManager.LambdaUpdate(ctx, orderID, func(current *Order, desired *Order) (shouldSave bool, returnValue interface{}) {
		if current == nil || !canView(current, claims) {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find order with specific ID")
			return
		}
		if current.BuyerID != claims.ID && !claims.Admin {
			returnValue = resp.ErrForbidden().AddMessages("Only the buyer may cancel the order")
			return
		}
		wasPaid = current.Status == StatusPaid
		if err := desired.Cancel(now); err != nil {
			returnValue = domainError(err)
			return
		}
		shouldSave = true
		return
	})
	o := s.writeLambdaOutcome(w, r, logger, lambdaResult, "Unable to cancel order")
	if o == nil {
		return
	}

	// A captured payment is refunded in full. Refund failure does not undo
	// the cancellation, orders cancelled from Paid without a refund
	// reference are reconciled out-of-band
	if wasPaid && len(o.PaymentRef) > 0 {
		refundRef, err := s.Processor.Refund(ctx, o.PaymentRef, o.TotalCents)
		if err != nil {
			logger.Error("Unable to refund cancelled order",
				zap.Error(err),
			)
		} else if err := s.OrderManager.SaveRefund(ctx, o.ID, refundRef); err != nil {
			logger.Error("Unable to record refund reference",
				zap.String("RefundRef", refundRef),
				zap.Error(err),
			)
		}
	}

	// Both parties hear about a cancellation
	for _, recipient := range []string{o.BuyerID, o.SellerID} {
		s.Notifier.Emit(ctx, notification.Event{
			Type:        notification.OrderCancelled,
			RecipientID: recipient,
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
		})
	}

	resp.WriteResponse(w, r, o)
}

// ReturnRequest carries the buyer's stated reason for the return
type ReturnRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (s *Service) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("OrderID", orderID),
	)

	var req ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("reason is required"))
		return
	}

	now := time.Now()
	lambdaResult := s.OrderManager.LambdaUpdate(ctx, orderID, func(current *Order, desired *Order) (shouldSave bool, returnValue interface{}) {
		if current == nil || (current.BuyerID != claims.ID && !claims.Admin) {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find order with specific ID")
			return
		}
		if err := desired.RequestReturn(req.Reason, now); err != nil {
			returnValue = domainError(err)
			return
		}
		shouldSave = true
		return
	})
	o := s.writeLambdaOutcome(w, r, logger, lambdaResult, "Unable to request return")
	if o == nil {
		return
	}

	s.Notifier.Emit(ctx, notification.Event{
		Type:        notification.ReturnRequested,
		RecipientID: o.SellerID,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Data: map[string]string{
			"reason": o.ReturnReason,
		},
	})

	resp.WriteResponse(w, r, o)
}

// RespondReturnRequest records the seller's decision
type RespondReturnRequest struct {
	Action string `json:"action" validate:"required,oneof=approve deny"`
}

func (s *Service) respondReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("OrderID", orderID),
	)

	var req RespondReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("action must be approve or deny"))
		return
	}
	approve := req.Action == "approve"

	now := time.Now()
	lambdaResult := s.OrderManager.LambdaUpdate(ctx, orderID, func(current *Order, desired *Order) (shouldSave bool, returnValue interface{}) {
		if current == nil || (current.SellerID != claims.ID && !claims.Admin) {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find order with specific ID")
			return
		}
		if err := desired.RespondReturn(approve, now); err != nil {
			returnValue = domainError(err)
			return
		}
		shouldSave = true
		return
	})
	o := s.writeLambdaOutcome(w, r, logger, lambdaResult, "Unable to respond to return")
	if o == nil {
		return
	}

	eventType := notification.ReturnDenied
	if approve {
		eventType = notification.ReturnApproved

		// Approval initiates the refund, same fail-through posture as
		// cancellation: the decision stands even if the refund call fails
		if len(o.PaymentRef) > 0 && len(o.RefundRef) == 0 {
			refundRef, err := s.Processor.Refund(ctx, o.PaymentRef, o.TotalCents)
			if err != nil {
				logger.Error("Unable to refund approved return",
					zap.Error(err),
				)
			} else if err := s.OrderManager.SaveRefund(ctx, o.ID, refundRef); err != nil {
				logger.Error("Unable to record refund reference",
					zap.String("RefundRef", refundRef),
					zap.Error(err),
				)
			}
		}
	}

	s.Notifier.Emit(ctx, notification.Event{
		Type:        eventType,
		RecipientID: o.BuyerID,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
	})

	resp.WriteResponse(w, r, o)
}

// writeLambdaOutcome handles the two failure legs shared by every
// compare-and-set handler, returning the updated order on success and nil
// when a response was already written
func (s *Service) writeLambdaOutcome(w http.ResponseWriter, r *http.Request, logger *zap.Logger, lambdaResult LambdaResult, errMessage string) *Order {
	if lambdaResult.ReturnValue != nil {
		resp.WriteError(w, r, lambdaResult.ReturnValue.(*resp.Error))
		return nil
	}
	if lambdaResult.TxError != nil {
		logger.Error("Unable to update order",
			zap.Error(lambdaResult.TxError),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages(errMessage))
		return nil
	}
	return lambdaResult.Order
}

// Router will return the routes under order API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.Auth.Middleware())
	r.Use(s.Auth.ClaimCheck())

	r.Get("/", s.listOrders)
	r.Post("/", s.newOrder)
	r.Get("/{id}", s.getOrder)
	r.Post("/{id}/pay", s.confirmPayment)
	r.Post("/{id}/ship", s.markShipped)
	r.Get("/{id}/rates", s.getRates)
	r.Post("/{id}/label", s.purchaseLabel)
	r.Post("/{id}/delivered", s.confirmDelivery)
	r.Post("/{id}/cancel", s.cancelOrder)
	r.Post("/{id}/return", s.requestReturn)
	r.Post("/{id}/return/respond", s.respondReturn)

	return r
}
