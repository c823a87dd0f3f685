// Package tenantusers implements the privileged cross-tenant admin surface:
// user CRUD under /tenants/{tenantID}/users, executed through the
// cross-tenant engine so every call is authorized, scoped, and audited.
package tenantusers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stratumhq/stratum/internal/http/middleware"
	"github.com/stratumhq/stratum/internal/httputil"
	"github.com/stratumhq/stratum/pkg/auth"
	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/permission"
	"github.com/stratumhq/stratum/pkg/repository"
	"github.com/stratumhq/stratum/pkg/tenant"
)

// Handler handles the cross-tenant user admin endpoints.
type Handler struct {
	logger   *slog.Logger
	exec     *tenant.Executor
	mappings *repository.EmailMappingsRepository
	sessions *repository.RefreshTokensRepository
	validate *validator.Validate
}

// NewHandler creates a cross-tenant users handler. The email mappings and
// refresh token repositories are bound to the shared directory store; user
// rows live in the target tenant's own partition.
func NewHandler(logger *slog.Logger, exec *tenant.Executor, mappings *repository.EmailMappingsRepository, sessions *repository.RefreshTokensRepository) *Handler {
	return &Handler{
		logger:   logger,
		exec:     exec,
		mappings: mappings,
		sessions: sessions,
		validate: validator.New(),
	}
}

type userView struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	IsActive    bool      `json:"isActive"`
	Roles       []string  `json:"roles"`
}

func toUserView(p *domain.Principal) userView {
	return userView{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		IsActive:    p.IsActive,
		Roles:       p.RoleNames,
	}
}

type createUserRequest struct {
	Email       string   `json:"email" validate:"required,email"`
	DisplayName string   `json:"displayName" validate:"required,max=100"`
	Password    string   `json:"password" validate:"required,min=12"`
	Roles       []string `json:"roles" validate:"dive,required"`
}

type updateUserRequest struct {
	DisplayName string `json:"displayName" validate:"required,max=100"`
	IsActive    *bool  `json:"isActive" validate:"required"`
}

// List handles GET /tenants/{tenantID}/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing_authorization", "missing authorization")
		return
	}
	targetID := chi.URLParam(r, "tenantID")

	result, err := h.exec.ExecuteAs(r.Context(), caller, targetID, "users.list", func(ctx context.Context, scope *tenant.Scope) (any, error) {
		return repository.NewUsersRepository(scope.DB()).ListByTenant(ctx, targetID)
	})
	if err != nil {
		httputil.DomainError(w, err)
		return
	}

	users := result.([]*domain.Principal)
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	httputil.Items(w, http.StatusOK, views)
}

// Create handles POST /tenants/{tenantID}/users. The email mapping is
// reserved in the shared directory first; the user row then lands in the
// target tenant's partition, and a failed creation releases the mapping.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing_authorization", "missing authorization")
		return
	}
	targetID := chi.URLParam(r, "tenantID")

	var req createUserRequest
	if err := httputil.Decode(r, h.validate, &req); err != nil {
		httputil.DomainError(w, err)
		return
	}

	result, err := h.exec.ExecuteAs(r.Context(), caller, targetID, "users.create", func(ctx context.Context, scope *tenant.Scope) (any, error) {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		if err := h.mappings.Create(ctx, &domain.EmailTenantMapping{
			Email:     req.Email,
			TenantID:  targetID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return nil, err
		}

		principal := &domain.Principal{
			ID:           uuid.New(),
			TenantID:     targetID,
			Email:        req.Email,
			DisplayName:  req.DisplayName,
			PasswordHash: hash,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		users := repository.NewUsersRepository(scope.DB())
		roles := repository.NewRolesRepository(scope.DB())
		if err := h.createWithRoles(ctx, users, roles, principal, req.Roles, targetID); err != nil {
			if derr := h.mappings.Deactivate(ctx, req.Email); derr != nil {
				h.logger.Warn("failed to release email mapping", "email", req.Email, "error", derr)
			}
			return nil, err
		}

		principal.RoleNames = req.Roles
		return principal, nil
	})
	if err != nil {
		httputil.DomainError(w, err)
		return
	}

	httputil.Data(w, http.StatusCreated, toUserView(result.(*domain.Principal)))
}

// Get handles GET /tenants/{tenantID}/users/{userID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing_authorization", "missing authorization")
		return
	}
	targetID := chi.URLParam(r, "tenantID")
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.DomainError(w, domain.Invalid(domain.FieldError{Field: "userID", Code: "invalid_uuid", Message: "not a valid user id"}))
		return
	}

	result, err := h.exec.ExecuteAs(r.Context(), caller, targetID, "users.get", func(ctx context.Context, scope *tenant.Scope) (any, error) {
		return repository.NewUsersRepository(scope.DB()).GetByID(ctx, userID)
	})
	if err != nil {
		httputil.DomainError(w, err)
		return
	}

	httputil.Data(w, http.StatusOK, toUserView(result.(*domain.Principal)))
}

// Update handles PUT /tenants/{tenantID}/users/{userID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing_authorization", "missing authorization")
		return
	}
	targetID := chi.URLParam(r, "tenantID")
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.DomainError(w, domain.Invalid(domain.FieldError{Field: "userID", Code: "invalid_uuid", Message: "not a valid user id"}))
		return
	}

	var req updateUserRequest
	if err := httputil.Decode(r, h.validate, &req); err != nil {
		httputil.DomainError(w, err)
		return
	}

	result, err := h.exec.ExecuteAs(r.Context(), caller, targetID, "users.update", func(ctx context.Context, scope *tenant.Scope) (any, error) {
		users := repository.NewUsersRepository(scope.DB())
		principal, err := users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}

		// Deactivating the last admin would lock the tenant out.
		if !*req.IsActive && principal.IsActive && principal.HasRole(permission.RoleAdmin) {
			admins, err := users.CountWithRole(ctx, targetID, permission.RoleAdmin)
			if err != nil {
				return nil, err
			}
			if admins <= 1 {
				return nil, domain.ErrLastAdmin
			}
		}

		deactivated := principal.IsActive && !*req.IsActive
		principal.DisplayName = req.DisplayName
		principal.IsActive = *req.IsActive
		if err := users.Update(ctx, principal); err != nil {
			return nil, err
		}
		if deactivated {
			// A deactivated user must not keep redeemable sessions.
			if err := h.sessions.RevokeAllForPrincipal(ctx, principal.ID); err != nil {
				return nil, err
			}
		}
		return principal, nil
	})
	if err != nil {
		httputil.DomainError(w, err)
		return
	}

	httputil.Data(w, http.StatusOK, toUserView(result.(*domain.Principal)))
}

// Delete handles DELETE /tenants/{tenantID}/users/{userID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing_authorization", "missing authorization")
		return
	}
	targetID := chi.URLParam(r, "tenantID")
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.DomainError(w, domain.Invalid(domain.FieldError{Field: "userID", Code: "invalid_uuid", Message: "not a valid user id"}))
		return
	}

	_, err = h.exec.ExecuteAs(r.Context(), caller, targetID, "users.delete", func(ctx context.Context, scope *tenant.Scope) (any, error) {
		users := repository.NewUsersRepository(scope.DB())
		principal, err := users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}

		if principal.HasRole(permission.RoleAdmin) {
			admins, err := users.CountWithRole(ctx, targetID, permission.RoleAdmin)
			if err != nil {
				return nil, err
			}
			if admins <= 1 {
				return nil, domain.ErrLastAdmin
			}
		}

		if err := users.SoftDelete(ctx, userID); err != nil {
			return nil, err
		}
		if err := h.sessions.RevokeAllForPrincipal(ctx, principal.ID); err != nil {
			return nil, err
		}
		if err := h.mappings.Deactivate(ctx, principal.Email); err != nil {
			h.logger.Warn("failed to release email mapping", "email", principal.Email, "error", err)
		}
		return nil, nil
	})
	if err != nil {
		httputil.DomainError(w, err)
		return
	}

	httputil.Data(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) createWithRoles(ctx context.Context, users *repository.UsersRepository, roles *repository.RolesRepository, principal *domain.Principal, roleNames []string, tenantID string) error {
	if err := users.Create(ctx, principal); err != nil {
		return err
	}
	for _, name := range roleNames {
		role, err := roles.GetByName(ctx, tenantID, name)
		if err != nil {
			return err
		}
		if err := users.AssignRole(ctx, principal.ID, role.ID); err != nil {
			return err
		}
	}
	return nil
}
