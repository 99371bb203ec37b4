package account

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/atelierhq/marketplace/auth"
	resp "github.com/atelierhq/marketplace/response"
	"github.com/atelierhq/marketplace/shipping"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// Options contains the configuration for Service router
type Options struct {
	Auth           *auth.Auth
	AccountManager *Manager
	Logger         *zap.Logger
}

// Service is the account API router
type Service struct {
	Options
}

// NewService will create an instance of the account API router
func NewService(option Options) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.AccountManager == nil {
		return nil, fmt.Errorf("nil AccountManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

// LoginRequest is the model of user request for login pin
type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *Service) requestLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	logger := s.Logger.With(zap.String("Email", req.Email))

	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid email address"))
		return
	}

	if err := s.Auth.Request(r.Context(), req.Email, req.Email); err != nil {
		logger.Error("Unable to send login PIN",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to send login token"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := chi.URLParam(r, "uid")
	token := chi.URLParam(r, "token")

	logger := s.Logger.With(zap.String("Email", email))

	valid, err := s.Auth.Verify(ctx, email, token)
	if err != nil {
		logger.Error("Unable to verify login PIN",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrVerifyToken())
		return
	}

	if !valid {
		resp.WriteError(w, r, resp.ErrUnauthorized().AddMessages("Invalid login token"))
		return
	}

	// "upsert" an account
	acct, err := s.AccountManager.GetByEmail(ctx, email)
	if err != nil {
		logger.Error("Unable to lookup Account",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	if acct == nil {
		acct, err = s.AccountManager.NewAccount(ctx, email)
		if err != nil {
			logger.Error("Unable to create Account",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected())
			return
		}
	}

	jwtToken, err := s.Auth.CreateTokenFromClaims(auth.Claims{
		ID:    acct.ID,
		Email: acct.Email,
		Admin: acct.Admin,
	})
	if err != nil {
		logger.Error("Unable to create JWT token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, tokenResponse{Token: jwtToken})
}

func (s *Service) getMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	acct, err := s.AccountManager.GetByID(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to query account",
			zap.String("AccountID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if acct == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}

	resp.WriteResponse(w, r, acct)
}

// ShipFromRequest is the model for configuring the seller's origin address
type ShipFromRequest struct {
	Name    string `json:"name" validate:"required"`
	Street1 string `json:"street1" validate:"required"`
	Street2 string `json:"street2"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone   string `json:"phone"`
}

func (s *Service) updateShipFrom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("AccountID", claims.ID))

	var req ShipFromRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Incomplete ship-from address"))
		return
	}

	acct, err := s.AccountManager.UpdateShipFrom(ctx, claims.ID, shipping.Address{
		Name:    req.Name,
		Street1: req.Street1,
		Street2: req.Street2,
		City:    req.City,
		State:   req.State,
		Zip:     req.Zip,
		Country: req.Country,
		Phone:   req.Phone,
	})
	if err != nil {
		logger.Error("Unable to update ship-from address",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if acct == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}

	resp.WriteResponse(w, r, acct)
}

// Router will return the routes under account API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/login", s.requestLogin)
	r.Get("/login/{uid}/{token}", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())

		r.Get("/me", s.getMe)
		r.Put("/me/shipfrom", s.updateShipFrom)
	})

	return r
}
