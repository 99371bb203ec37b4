package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atelierhq/marketplace/auth"
	"github.com/atelierhq/marketplace/notification"
	"github.com/atelierhq/marketplace/order"
	resp "github.com/atelierhq/marketplace/response"
	"github.com/atelierhq/marketplace/shipping"
	"github.com/atelierhq/marketplace/subscription"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth                *auth.Auth
	OrderManager        *order.Manager
	SubscriptionManager *subscription.Manager
	Notifier            notification.Notifier
	Logger              *zap.Logger
}

// Service is the admin API router. Every route requires an admin claim;
// the handlers reuse the domain transition methods so the support surface
// cannot drift from the state machines it operates on
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the admin API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.OrderManager == nil {
		return nil, fmt.Errorf("nil OrderManager is invalid")
	}
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
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

func (s *Service) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opt := order.ListOption{
		BuyerID:  r.URL.Query().Get("buyerId"),
		SellerID: r.URL.Query().Get("sellerId"),
		Limit:    100,
	}
	if status := order.Status(r.URL.Query().Get("status")); len(status) > 0 {
		if !order.ValidStatus(status) {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Unknown status filter"))
			return
		}
		opt.Status = status
	}

	results, err := s.OrderManager.List(ctx, opt)
	if err != nil {
		s.Logger.Error("Unable to list orders",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of orders"))
		return
	}
	resp.WriteResponse(w, r, results)
}

// ForceStatusRequest names the status to set, bypassing trigger rules
type ForceStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s *Service) forceOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("OrderID", orderID))

	var req ForceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("status is required"))
		return
	}
	status := order.Status(req.Status)
	if !order.ValidStatus(status) {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(fmt.Sprintf("Unknown status %q", req.Status)))
		return
	}

	now := time.Now()
	lambdaResult := s.OrderManager.LambdaUpdate(ctx, orderID, func(current *order.Order, desired *order.Order) (shouldSave bool, returnValue interface{}) {
		if current == nil {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find order with specific ID")
			return
		}
		if err := desired.ForceStatus(status, now); err != nil {
			returnValue = resp.ErrBadRequest().AddMessages(err.Error())
			return
		}
		shouldSave = true
		return
	})
	o := s.writeOrderOutcome(w, r, logger, lambdaResult, "Unable to update order status")
	if o == nil {
		return
	}

	resp.WriteResponse(w, r, o)
}

// SetTrackingRequest corrects the tracking fields of an order. The carrier
// and tracking number are required; tracking and label URLs are optional
type SetTrackingRequest struct {
	Carrier        string `json:"carrier" validate:"required"`
	TrackingNumber string `json:"trackingNumber" validate:"required"`
	TrackingURL    string `json:"trackingUrl"`
	LabelURL       string `json:"labelUrl"`
}

func (s *Service) setTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("OrderID", orderID))

	var req SetTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("carrier and trackingNumber are required"))
		return
	}

	label := shipping.Label{
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		TrackingURL:    req.TrackingURL,
		LabelURL:       req.LabelURL,
	}

	lambdaResult := s.OrderManager.LambdaUpdate(ctx, orderID, func(current *order.Order, desired *order.Order) (shouldSave bool, returnValue interface{}) {
		if current == nil {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find order with specific ID")
			return
		}
		// Tracking is meaningless before payment and after cancellation
		switch current.Status {
		case order.StatusPaid, order.StatusShipped, order.StatusDelivered:
		default:
			returnValue = resp.ErrInvalidTransition(string(current.Status)).AddMessages("Tracking can only be set on paid, shipped or delivered orders")
			return
		}
		desired.ApplyLabel(&label)
		shouldSave = true
		return
	})
	o := s.writeOrderOutcome(w, r, logger, lambdaResult, "Unable to set tracking")
	if o == nil {
		return
	}

	resp.WriteResponse(w, r, o)
}

func (s *Service) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	results, err := s.SubscriptionManager.List(ctx, subscription.ListOption{
		UserID: r.URL.Query().Get("userId"),
		Limit:  100,
	})
	if err != nil {
		s.Logger.Error("Unable to list subscriptions",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of subscriptions"))
		return
	}
	resp.WriteResponse(w, r, results)
}

// ExtendRequest carries the number of days of goodwill extension
type ExtendRequest struct {
	Days int `json:"days" validate:"required,gte=1,lte=365"`
}

func (s *Service) extendSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("SubscriptionID", subscriptionID))

	var req ExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("days must be between 1 and 365"))
		return
	}

	now := time.Now()
	lambdaResult := s.SubscriptionManager.LambdaUpdate(ctx, subscriptionID, func(current *subscription.Subscription, desired *subscription.Subscription) (shouldSave bool, returnValue interface{}) {
		if current == nil {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID")
			return
		}
		if err := desired.ExtendBy(req.Days, now); err != nil {
			returnValue = subscriptionError(err)
			return
		}
		shouldSave = true
		return
	})
	sub := s.writeSubscriptionOutcome(w, r, logger, lambdaResult, "Unable to extend subscription")
	if sub == nil {
		return
	}

	s.Notifier.Emit(ctx, notification.Event{
		Type:        notification.SubscriptionUpdated,
		RecipientID: sub.UserID,
		Data: map[string]string{
			"subscriptionId": sub.ID,
			"action":         "extend",
			"days":           fmt.Sprintf("%d", req.Days),
		},
	})

	resp.WriteResponse(w, r, sub)
}

func (s *Service) expireSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("SubscriptionID", subscriptionID))

	now := time.Now()
	lambdaResult := s.SubscriptionManager.LambdaUpdate(ctx, subscriptionID, func(current *subscription.Subscription, desired *subscription.Subscription) (shouldSave bool, returnValue interface{}) {
		if current == nil {
			returnValue = resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID")
			return
		}
		if err := desired.ForceExpire(now); err != nil {
			returnValue = subscriptionError(err)
			return
		}
		shouldSave = true
		return
	})
	sub := s.writeSubscriptionOutcome(w, r, logger, lambdaResult, "Unable to expire subscription")
	if sub == nil {
		return
	}

	s.Notifier.Emit(ctx, notification.Event{
		Type:        notification.SubscriptionExpired,
		RecipientID: sub.UserID,
		Data: map[string]string{
			"subscriptionId": sub.ID,
		},
	})

	resp.WriteResponse(w, r, sub)
}

func (s *Service) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.SubscriptionManager.ListPlans(r.Context(), true)
	if err != nil {
		s.Logger.Error("Unable to list plans",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of plans"))
		return
	}
	resp.WriteResponse(w, r, plans)
}

// PlanRequest is the admin-facing catalog entry shape
type PlanRequest struct {
	Name              string `json:"name" validate:"required"`
	Tier              string `json:"tier"`
	Description       string `json:"description"`
	PriceMonthlyCents int64  `json:"priceMonthlyCents" validate:"gte=0"`
	PriceYearlyCents  int64  `json:"priceYearlyCents" validate:"gte=0"`
	MaxListings       int    `json:"maxListings" validate:"gte=0"`
	Features          string `json:"features"`
	Active            bool   `json:"active"`
	DisplayOrder      int    `json:"displayOrder"`
}

func (s *Service) savePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID := chi.URLParam(r, "id")

	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid plan fields"))
		return
	}

	// Editing an existing entry requires it to exist; creating passes an
	// empty id and gets one assigned
	if len(planID) > 0 {
		existing, err := s.SubscriptionManager.GetPlan(ctx, planID)
		if err != nil {
			s.Logger.Error("Unable to query plan",
				zap.String("PlanID", planID),
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to save Plan"))
			return
		}
		if existing == nil {
			resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find plan with specific ID"))
			return
		}
	}

	plan := subscription.Plan{
		ID:                planID,
		Name:              req.Name,
		Tier:              req.Tier,
		Description:       req.Description,
		PriceMonthlyCents: req.PriceMonthlyCents,
		PriceYearlyCents:  req.PriceYearlyCents,
		MaxListings:       req.MaxListings,
		Features:          req.Features,
		Active:            req.Active,
		DisplayOrder:      req.DisplayOrder,
	}
	if err := s.SubscriptionManager.SavePlan(ctx, &plan); err != nil {
		s.Logger.Error("Unable to save plan",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to save Plan"))
		return
	}

	resp.WriteResponse(w, r, plan)
}

// subscriptionError maps subscription transition errors to API errors
func subscriptionError(err error) *resp.Error {
	var transitionErr *subscription.TransitionError
	if errors.As(err, &transitionErr) {
		return resp.ErrInvalidTransition(string(transitionErr.Current))
	}
	return resp.ErrBadRequest().AddMessages(err.Error())
}

func (s *Service) writeOrderOutcome(w http.ResponseWriter, r *http.Request, logger *zap.Logger, lambdaResult order.LambdaResult, errMessage string) *order.Order {
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

func (s *Service) writeSubscriptionOutcome(w http.ResponseWriter, r *http.Request, logger *zap.Logger, lambdaResult subscription.LambdaResult, errMessage string) *subscription.Subscription {
	if lambdaResult.ReturnValue != nil {
		resp.WriteError(w, r, lambdaResult.ReturnValue.(*resp.Error))
		return nil
	}
	if lambdaResult.TxError != nil {
		logger.Error("Unable to update subscription",
			zap.Error(lambdaResult.TxError),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages(errMessage))
		return nil
	}
	return lambdaResult.Subscription
}

// Router will return the routes under admin API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.Auth.Middleware())
	r.Use(s.Auth.ClaimCheck())
	r.Use(s.Auth.AdminCheck())

	r.Get("/orders", s.listOrders)
	r.Post("/orders/{id}/status", s.forceOrderStatus)
	r.Post("/orders/{id}/tracking", s.setTracking)

	r.Get("/subscriptions", s.listSubscriptions)
	r.Post("/subscriptions/{id}/extend", s.extendSubscription)
	r.Post("/subscriptions/{id}/expire", s.expireSubscription)

	r.Get("/plans", s.listPlans)
	r.Post("/plans", s.savePlan)
	r.Put("/plans/{id}", s.savePlan)

	return r
}
