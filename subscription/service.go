package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atelierhq/marketplace/auth"
	"github.com/atelierhq/marketplace/notification"
	"github.com/atelierhq/marketplace/payment"
	resp "github.com/atelierhq/marketplace/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth                *auth.Auth
	SubscriptionManager *Manager
	Processor           payment.Processor
	Notifier            notification.Notifier
	Logger              *zap.Logger
}

// Service is the subscription API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
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

func (s *Service) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.SubscriptionManager.ListPlans(r.Context(), false)
	if err != nil {
		s.Logger.Error("Unable to list plans",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of plans"))
		return
	}
	resp.WriteResponse(w, r, plans)
}

func (s *Service) getCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	sub, err := s.SubscriptionManager.Current(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to query current subscription",
			zap.String("UserID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get current subscription"))
		return
	}
	if sub == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No subscription on file"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	results, err := s.SubscriptionManager.List(ctx, ListOption{
		UserID: claims.ID,
		Limit:  10,
	})
	if err != nil {
		s.Logger.Error("Unable to list subscriptions",
			zap.String("UserID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get subscription history"))
		return
	}
	resp.WriteResponse(w, r, results)
}

// SubscribeRequest is the model of user request for a new subscription.
// PaymentRef is the opaque reference from the completed checkout
type SubscribeRequest struct {
	PlanID        string `json:"planId" validate:"required"`
	BillingPeriod string `json:"billingPeriod" validate:"required"`
	PaymentRef    string `json:"paymentRef" validate:"required"`
}

func (s *Service) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("planId, billingPeriod and paymentRef are required"))
		return
	}
	period := BillingPeriod(req.BillingPeriod)
	if !ValidBillingPeriod(period) {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("billingPeriod must be Monthly or Yearly"))
		return
	}

	now := time.Now()

	current, err := s.SubscriptionManager.Current(ctx, claims.ID)
	if err != nil {
		logger.Error("Unable to query current subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to subscribe"))
		return
	}
	if current.HasAccess(now) {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("An active subscription already exists"))
		return
	}

	plan, err := s.SubscriptionManager.GetPlan(ctx, req.PlanID)
	if err != nil {
		logger.Error("Unable to query plan",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to subscribe"))
		return
	}
	if plan == nil || !plan.Active {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find plan with specific ID"))
		return
	}

	logger = logger.With(zap.String("PlanID", plan.ID))

	if err := s.Processor.VerifyPayment(ctx, req.PaymentRef, plan.PriceFor(period)); err != nil {
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

	sub := NewFromPlan(claims.ID, *plan, period, req.PaymentRef, now)
	if err := s.SubscriptionManager.Create(ctx, sub); err != nil {
		logger.Error("Unable to create subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to subscribe"))
		return
	}

	s.Notifier.Emit(ctx, notification.Event{
		Type:        notification.SubscriptionCreated,
		RecipientID: claims.ID,
		Data: map[string]string{
			"subscriptionId": sub.ID,
			"planName":       sub.PlanName,
		},
	})

	resp.WriteResponse(w, r, sub)
}

func (s *Service) cancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "cancel", func(sub *Subscription, now time.Time) error {
		return sub.Cancel(now)
	})
}

func (s *Service) resume(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "resume", func(sub *Subscription, now time.Time) error {
		return sub.Resume(now)
	})
}

// transition applies a lifecycle operation to the caller's current
// subscription under a compare-and-set update
func (s *Service) transition(w http.ResponseWriter, r *http.Request, action string, op func(*Subscription, time.Time) error) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("Action", action),
	)

	current, err := s.SubscriptionManager.Current(ctx, claims.ID)
	if err != nil {
		logger.Error("Unable to query current subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if current == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No subscription on file"))
		return
	}

	now := time.Now()
	lambda := func(current *Subscription, desired *Subscription) (shouldSave bool, returnValue interface{}) {
		if current == nil || current.UserID != claims.ID {
			returnValue = resp.ErrNotFound().AddMessages("No subscription on file")
			return
		}
		if err := op(desired, now); err != nil {
			var transitionErr *TransitionError
			if errors.As(err, &transitionErr) {
				returnValue = resp.ErrInvalidTransition(string(transitionErr.Current))
				return
			}
			returnValue = resp.ErrBadRequest().AddMessages(err.Error())
			return
		}
		shouldSave = true
		return
	}

	lambdaResult := s.SubscriptionManager.LambdaUpdate(ctx, current.ID, lambda)

	if lambdaResult.ReturnValue != nil {
		resp.WriteError(w, r, lambdaResult.ReturnValue.(*resp.Error))
		return
	}
	if lambdaResult.TxError != nil {
		logger.Error("Unable to update subscription",
			zap.Error(lambdaResult.TxError),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update subscription"))
		return
	}

	s.Notifier.Emit(ctx, notification.Event{
		Type:        notification.SubscriptionUpdated,
		RecipientID: claims.ID,
		Data: map[string]string{
			"subscriptionId": lambdaResult.Subscription.ID,
			"action":         action,
		},
	})

	resp.WriteResponse(w, r, lambdaResult.Subscription)
}

// Router will return the routes under subscription API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/plans", s.listPlans)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())

		r.Get("/", s.getCurrent)
		r.Get("/history", s.listHistory)
		r.Post("/", s.subscribe)
		r.Post("/cancel", s.cancel)
		r.Post("/resume", s.resume)
	})

	return r
}
