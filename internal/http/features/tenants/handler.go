// Package tenants implements the tenant provisioning and lifecycle admin
// surface, plus the cross-tenant audit log endpoint.
package tenants

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stratumhq/stratum/internal/http/middleware"
	"github.com/stratumhq/stratum/internal/httputil"
	"github.com/stratumhq/stratum/pkg/auth"
	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/permission"
	"github.com/stratumhq/stratum/pkg/rbac"
	"github.com/stratumhq/stratum/pkg/repository"
	"github.com/stratumhq/stratum/pkg/tenant"
)

// Invalidator lets the handler evict directory cache entries after
// lifecycle changes. Satisfied by tenant.CachedDirectory.
type Invalidator interface {
	Invalidate(id string)
	InvalidateEmail(email string)
}

// Handler handles tenant provisioning, activation, renewal, and the
// cross-tenant audit log.
type Handler struct {
	logger   *slog.Logger
	tenants  *repository.TenantsRepository
	mappings *repository.EmailMappingsRepository
	audit    *repository.AuditRepository
	scopes   *tenant.ScopeManager
	cache    Invalidator
	validate *validator.Validate
}

func NewHandler(
	logger *slog.Logger,
	tenants *repository.TenantsRepository,
	mappings *repository.EmailMappingsRepository,
	audit *repository.AuditRepository,
	scopes *tenant.ScopeManager,
	cache Invalidator,
) *Handler {
	return &Handler{
		logger:   logger,
		tenants:  tenants,
		mappings: mappings,
		audit:    audit,
		scopes:   scopes,
		cache:    cache,
		validate: validator.New(),
	}
}

type createTenantRequest struct {
	ID             string  `json:"id" validate:"required,lowercase,alphanum,min=2,max=63"`
	DisplayName    string  `json:"displayName" validate:"required,max=100"`
	OwnerEmail     string  `json:"ownerEmail" validate:"required,email"`
	OwnerName      string  `json:"ownerName" validate:"required,max=100"`
	OwnerPassword  string  `json:"ownerPassword" validate:"required,min=12"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	ConnectionInfo *string `json:"connectionInfo"`
}

type renewTenantRequest struct {
	ExpiresAt time.Time `json:"expiresAt" validate:"required"`
}

type tenantView struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	OwnerEmail  string     `json:"ownerEmail"`
	IsActive    bool       `json:"isActive"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Dedicated   bool       `json:"dedicated"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toTenantView(t *domain.Tenant) tenantView {
	return tenantView{
		ID:          t.ID,
		DisplayName: t.DisplayName,
		OwnerEmail:  t.OwnerEmail,
		IsActive:    t.IsActive,
		ExpiresAt:   t.ExpiresAt,
		Dedicated:   t.Dedicated(),
		CreatedAt:   t.CreatedAt,
	}
}

// Create handles POST /tenants. Provisioning runs in order: tenant row,
// role seeding inside the new tenant's scope, owner principal with the
// Admin role, email mapping for login routing.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := httputil.Decode(r, h.validate, &req); err != nil {
		httputil.DomainError(w, err)
		return
	}
	if req.ID == domain.SystemTenantID {
		httputil.DomainError(w, domain.Invalid(domain.FieldError{Field: "id", Code: "reserved", Message: "tenant id is reserved"}))
		return
	}

	ctx := r.Context()

	// One owner email per tenant; the owner's login mapping could not be
	// created for a second tenant anyway.
	existing, err := h.tenants.GetByOwnerEmail(ctx, req.OwnerEmail)
	if err == nil {
		httputil.DomainError(w, domain.E(domain.KindConflict, "owner_exists", "email already owns tenant "+existing.ID))
		return
	}
	if !errors.Is(err, domain.ErrTenantNotFound) {
		httputil.DomainError(w, err)
		return
	}

	now := time.Now()
	t := &domain.Tenant{
		ID:             req.ID,
		DisplayName:    req.DisplayName,
		OwnerEmail:     req.OwnerEmail,
		IsActive:       true,
		ExpiresAt:      req.ExpiresAt,
		ConnectionInfo: req.ConnectionInfo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.tenants.Create(ctx, t); err != nil {
		httputil.DomainError(w, err)
		return
	}

	if err := h.provision(ctx, t, req); err != nil {
		h.logger.Error("tenant provisioning failed", "tenant", t.ID, "error", err)
		httputil.DomainError(w, err)
		return
	}

	h.logger.Info("tenant provisioned", "tenant", t.ID, "owner", req.OwnerEmail)
	httputil.Data(w, http.StatusCreated, toTenantView(t))
}

func (h *Handler) provision(ctx context.Context, t *domain.Tenant, req createTenantRequest) error {
	scope, err := h.scopes.OpenScope(ctx, t.ID)
	if err != nil {
		return err
	}
	defer scope.Close()

	roles := repository.NewRolesRepository(scope.DB())
	if err := rbac.NewSeeder(roles, h.logger).SeedTenant(ctx, t.ID); err != nil {
		return err
	}

	hash, err := auth.HashPassword(req.OwnerPassword)
	if err != nil {
		return err
	}
	now := time.Now()
	owner := &domain.Principal{
		ID:           uuid.New(),
		TenantID:     t.ID,
		Email:        req.OwnerEmail,
		DisplayName:  req.OwnerName,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	users := repository.NewUsersRepository(scope.DB())
	if err := users.Create(ctx, owner); err != nil {
		return err
	}
	admin, err := roles.GetByName(ctx, t.ID, permission.RoleAdmin)
	if err != nil {
		return err
	}
	if err := users.AssignRole(ctx, owner.ID, admin.ID); err != nil {
		return err
	}

	if err := h.mappings.Create(ctx, &domain.EmailTenantMapping{
		Email:     req.OwnerEmail,
		TenantID:  t.ID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil && !errors.Is(err, domain.ErrEmailMapped) {
		return err
	}

	h.cache.InvalidateEmail(req.OwnerEmail)
	return nil
}

// List handles GET /tenants.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.tenants.List(r.Context())
	if err != nil {
		httputil.DomainError(w, err)
		return
	}
	views := make([]tenantView, 0, len(all))
	for _, t := range all {
		views = append(views, toTenantView(t))
	}
	httputil.Items(w, http.StatusOK, views)
}

// Activate handles POST /tenants/{tenantID}/activate.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /tenants/{tenantID}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "tenantID")
	if id == domain.SystemTenantID && !active {
		httputil.DomainError(w, domain.E(domain.KindForbidden, "system_tenant", "the system tenant cannot be deactivated"))
		return
	}
	if err := h.tenants.SetActive(r.Context(), id, active); err != nil {
		httputil.DomainError(w, err)
		return
	}
	h.cache.Invalidate(id)
	h.logger.Info("tenant active flag changed", "tenant", id, "active", active)

	t, err := h.tenants.GetByID(r.Context(), id)
	if err != nil {
		httputil.DomainError(w, err)
		return
	}
	httputil.Data(w, http.StatusOK, toTenantView(t))
}

// Renew handles POST /tenants/{tenantID}/renew.
func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantID")

	var req renewTenantRequest
	if err := httputil.Decode(r, h.validate, &req); err != nil {
		httputil.DomainError(w, err)
		return
	}
	if req.ExpiresAt.Before(time.Now()) {
		httputil.DomainError(w, domain.Invalid(domain.FieldError{Field: "expiresAt", Code: "past", Message: "renewal date must be in the future"}))
		return
	}

	if err := h.tenants.Renew(r.Context(), id, req.ExpiresAt); err != nil {
		httputil.DomainError(w, err)
		return
	}
	h.cache.Invalidate(id)
	h.logger.Info("tenant renewed", "tenant", id, "expiresAt", req.ExpiresAt)

	t, err := h.tenants.GetByID(r.Context(), id)
	if err != nil {
		httputil.DomainError(w, err)
		return
	}
	httputil.Data(w, http.StatusOK, toTenantView(t))
}

// Audit handles GET /audit. It lists the caller's own cross-tenant audit
// trail, newest first.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing_authorization", "missing authorization")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := h.audit.ListByActor(r.Context(), caller.ID, limit)
	if err != nil {
		httputil.DomainError(w, err)
		return
	}
	httputil.Items(w, http.StatusOK, records)
}
