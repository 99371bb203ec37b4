package listing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atelierhq/marketplace/auth"
	resp "github.com/atelierhq/marketplace/response"
	"github.com/atelierhq/marketplace/shipping"
	"github.com/atelierhq/marketplace/subscription"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth                *auth.Auth
	ListingManager      *Manager
	SubscriptionManager *subscription.Manager
	Logger              *zap.Logger
}

// Service is the listing API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the listing API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.ListingManager == nil {
		return nil, fmt.Errorf("nil ListingManager is invalid")
	}
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// NewListingRequest contains the request from a seller to list a piece.
// Listings start Inactive; activation is where quota is enforced
type NewListingRequest struct {
	Title         string  `json:"title" validate:"required"`
	Description   string  `json:"description"`
	PriceCents    int64   `json:"priceCents" validate:"required,gt=0"`
	ShippingCents int64   `json:"shippingCents" validate:"gte=0"`
	ReturnDays    *int    `json:"returnDays" validate:"omitempty,gte=0,lte=365"`
	WeightOz      float64 `json:"weightOz" validate:"gt=0"`
	LengthIn      float64 `json:"lengthIn" validate:"gt=0"`
	WidthIn       float64 `json:"widthIn" validate:"gt=0"`
	HeightIn      float64 `json:"heightIn" validate:"gt=0"`
}

func (s *Service) newListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("SellerID", claims.ID))

	var req NewListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid listing fields"))
		return
	}

	l := Listing{
		ID:            uuid.New().String(),
		SellerID:      claims.ID,
		Title:         req.Title,
		Description:   req.Description,
		PriceCents:    req.PriceCents,
		ShippingCents: req.ShippingCents,
		ReturnDays:    req.ReturnDays,
		Parcel: shipping.Parcel{
			WeightOz: req.WeightOz,
			LengthIn: req.LengthIn,
			WidthIn:  req.WidthIn,
			HeightIn: req.HeightIn,
		},
		Status: StatusInactive,
	}

	if err := s.ListingManager.Create(ctx, &l); err != nil {
		logger.Error("Unable to create listing",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create Listing"))
		return
	}

	resp.WriteResponse(w, r, l)
}

func (s *Service) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	results, err := s.ListingManager.ListBySeller(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to list listings by seller id",
			zap.String("SellerID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of listings"))
		return
	}
	resp.WriteResponse(w, r, results)
}

func (s *Service) getListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID := chi.URLParam(r, "id")

	l, err := s.ListingManager.GetByID(ctx, listingID)
	if err != nil {
		s.Logger.Error("Unable to query listing",
			zap.String("ListingID", listingID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the listing"))
		return
	}
	if l == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
		return
	}
	resp.WriteResponse(w, r, l)
}

// activateListing enforces the subscription quota: activation requires a
// current subscription with access and fewer active listings than the
// granted maximum. Existing active listings are never force-deactivated
// when the quota later shrinks
func (s *Service) activateListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	listingID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("SellerID", claims.ID),
		zap.String("ListingID", listingID),
	)

	l, err := s.ListingManager.GetByID(ctx, listingID)
	if err != nil {
		logger.Error("Unable to query listing",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to activate Listing"))
		return
	}
	if l == nil || l.SellerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
		return
	}
	if l.Status == StatusActive {
		resp.WriteResponse(w, r, l)
		return
	}

	maxListings, hasAccess, err := s.SubscriptionManager.QuotaFor(ctx, claims.ID, time.Now())
	if err != nil {
		logger.Error("Unable to compute listing quota",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to activate Listing"))
		return
	}
	if !hasAccess {
		resp.WriteError(w, r, resp.ErrIneligible("No active subscription"))
		return
	}

	// The recount and the status flip run in one transaction so a pair of
	// concurrent activations cannot both slip under the quota
	updated, denied, err := s.ListingManager.Activate(ctx, listingID, maxListings)
	if err != nil {
		logger.Error("Unable to activate listing",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to activate Listing"))
		return
	}
	if len(denied) > 0 {
		resp.WriteError(w, r, resp.ErrIneligible(denied))
		return
	}
	if updated == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
		return
	}

	resp.WriteResponse(w, r, updated)
}

// QuotaStatus reports the seller's quota usage
type QuotaStatus struct {
	MaxListings int  `json:"maxListings"`
	ActiveCount int  `json:"activeCount"`
	HasAccess   bool `json:"hasAccess"`
}

func (s *Service) quotaStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	maxListings, hasAccess, err := s.SubscriptionManager.QuotaFor(ctx, claims.ID, time.Now())
	if err != nil {
		s.Logger.Error("Unable to compute listing quota",
			zap.String("SellerID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get quota usage"))
		return
	}

	activeCount, err := s.ListingManager.CountActive(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to count active listings",
			zap.String("SellerID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get quota usage"))
		return
	}

	resp.WriteResponse(w, r, QuotaStatus{
		MaxListings: maxListings,
		ActiveCount: activeCount,
		HasAccess:   hasAccess,
	})
}

func (s *Service) deactivateListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	listingID := chi.URLParam(r, "id")

	l, err := s.ListingManager.GetByID(ctx, listingID)
	if err != nil {
		s.Logger.Error("Unable to query listing",
			zap.String("ListingID", listingID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to deactivate Listing"))
		return
	}
	if l == nil || l.SellerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
		return
	}

	updated, err := s.ListingManager.SetStatus(ctx, listingID, StatusInactive)
	if err != nil {
		s.Logger.Error("Unable to deactivate listing",
			zap.String("ListingID", listingID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to deactivate Listing"))
		return
	}

	resp.WriteResponse(w, r, updated)
}

// Router will return the routes under listing API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/{id}", s.getListing)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())

		r.Get("/", s.listMine)
		r.Get("/quota", s.quotaStatus)
		r.Post("/", s.newListing)
		r.Post("/{id}/activate", s.activateListing)
		r.Post("/{id}/deactivate", s.deactivateListing)
	})

	return r
}
