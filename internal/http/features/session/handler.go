// Package session implements the login and token-refresh endpoints.
package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stratumhq/stratum/internal/httputil"
	"github.com/stratumhq/stratum/pkg/auth"
	"github.com/stratumhq/stratum/pkg/tenant"
)

// Handler handles authentication endpoints.
type Handler struct {
	logger   *slog.Logger
	tokens   *auth.TokenService
	validate *validator.Validate
}

// NewHandler creates a session handler.
func NewHandler(logger *slog.Logger, tokens *auth.TokenService) *Handler {
	return &Handler{
		logger:   logger,
		tokens:   tokens,
		validate: validator.New(),
	}
}

type loginRequest struct {
	UserName string `json:"userName" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	CurrentJWT             string     `json:"currentJwt" validate:"required"`
	CurrentRefreshToken    string     `json:"currentRefreshToken" validate:"required"`
	RefreshTokenExpiryDate *time.Time `json:"refreshTokenExpiryDate"`
}

type tokenResponse struct {
	JWT                        string    `json:"jwt"`
	RefreshToken               string    `json:"refreshToken"`
	RefreshTokenExpirationDate time.Time `json:"refreshTokenExpirationDate"`
}

// Login handles POST /login. The tenant has already been resolved by the
// strategy chain; authentication runs against that tenant's partition.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.Decode(r, h.validate, &req); err != nil {
		httputil.DomainError(w, err)
		return
	}

	tenantID, _ := tenant.ResolvedFrom(r.Context())
	pair, err := h.tokens.Authenticate(r.Context(), tenantID, req.UserName, req.Password)
	if err != nil {
		h.logger.Info("login rejected", "tenant", tenantID, "error", err)
		httputil.DomainError(w, err)
		return
	}

	httputil.Data(w, http.StatusOK, tokenResponse{
		JWT:                        pair.AccessToken,
		RefreshToken:               pair.RefreshToken,
		RefreshTokenExpirationDate: pair.RefreshTokenExpiresAt,
	})
}

// Refresh handles POST /refresh-token. The expired token's signature is
// validated; its lifetime deliberately is not.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httputil.Decode(r, h.validate, &req); err != nil {
		httputil.DomainError(w, err)
		return
	}

	pair, err := h.tokens.Refresh(r.Context(), req.CurrentJWT, req.CurrentRefreshToken)
	if err != nil {
		httputil.DomainError(w, err)
		return
	}

	httputil.Data(w, http.StatusOK, tokenResponse{
		JWT:                        pair.AccessToken,
		RefreshToken:               pair.RefreshToken,
		RefreshTokenExpirationDate: pair.RefreshTokenExpiresAt,
	})
}
