package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/headcorn/dashboard-api/internal/auth"
	"github.com/headcorn/dashboard-api/internal/domain"
	"github.com/headcorn/dashboard-api/internal/service"
	"go.uber.org/zap"
)

// AuthService is the authentication flow used by the handler
type AuthService interface {
	CheckEmail(ctx context.Context, email string) (*domain.CheckEmailResponse, error)
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.LoginResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	ChangePassword(ctx context.Context, email string, req *domain.ChangePasswordRequest) error
}

type AuthHandler struct {
	authService AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// notRegisteredError tells the login form to switch to registration
type notRegisteredError struct {
	domain.APIError
	Registered bool `json:"registered"`
}

// CheckEmail godoc
// @Summary Check an email
// @Description Resolves the CRM identity behind an email and reports whether it has an account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body domain.CheckEmailRequest true "Email"
// @Success 200 {object} domain.CheckEmailResponse
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 503 {object} domain.APIError
// @Router /api/auth/check-email [post]
func (h *AuthHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.CheckEmail(r.Context(), req.Email)
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Register godoc
// @Summary Register
// @Description Creates an account for an email known to the CRM and returns an access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body domain.RegisterRequest true "Credentials"
// @Success 201 {object} domain.LoginResponse
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Login godoc
// @Summary Log in
// @Description Verifies email and password and returns an access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body domain.LoginRequest true "Credentials"
// @Success 200 {object} domain.LoginResponse
// @Failure 401 {object} domain.APIError
// @Failure 404 {object} domain.APIError "Not registered"
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Me godoc
// @Summary Get current authenticated user
// @Description Returns the identity carried by the access token
// @Tags Auth
// @Produce json
// @Success 200 {object} domain.UserInfo
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	respondJSON(w, http.StatusOK, domain.UserInfo{
		Email:    userCtx.Email,
		FullName: userCtx.FullName,
		CRMID:    userCtx.CRMID,
	})
}

// ChangePassword godoc
// @Summary Change password
// @Tags Auth
// @Accept json
// @Param request body domain.ChangePasswordRequest true "Passwords"
// @Success 204
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /api/auth/change-password [post]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userCtx := auth.MustFromContext(r.Context())

	var req domain.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.ChangePassword(r.Context(), userCtx.Email, &req); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotRegistered):
		respondJSON(w, http.StatusNotFound, notRegisteredError{
			APIError: domain.APIError{
				Type:   domain.ErrorTypeNotFound,
				Title:  http.StatusText(http.StatusNotFound),
				Status: http.StatusNotFound,
				Detail: "User is not registered",
			},
			Registered: false,
		})
	case errors.Is(err, service.ErrUnknownUser):
		respondWithError(w, http.StatusNotFound, "User with this email was not found in the CRM")
	case errors.Is(err, service.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		respondWithError(w, http.StatusUnauthorized, "Incorrect email or password")
	case errors.Is(err, service.ErrAlreadyRegistered):
		respondWithError(w, http.StatusConflict, "User is already registered")
	case errors.Is(err, service.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCRMUnavailable):
		h.logger.Error("CRM unavailable", zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "CRM is temporarily unavailable")
	default:
		h.logger.Error("auth request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
