package tenants

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stratumhq/stratum/internal/http/middleware"
	"github.com/stratumhq/stratum/internal/httputil"
	"github.com/stratumhq/stratum/pkg/auth"
	"github.com/stratumhq/stratum/pkg/repository"
)

type fakeInvalidator struct {
	ids    []string
	emails []string
}

func (f *fakeInvalidator) Invalidate(id string)         { f.ids = append(f.ids, id) }
func (f *fakeInvalidator) InvalidateEmail(email string) { f.emails = append(f.emails, email) }

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock, *fakeInvalidator) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &fakeInvalidator{}
	h := NewHandler(
		logger,
		repository.NewTenantsRepository(db),
		repository.NewEmailMappingsRepository(db),
		repository.NewAuditRepository(db),
		nil,
		cache,
	)
	return h, mock, cache
}

func serve(h *Handler, claims *auth.Claims, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/tenants", h.Create)
	r.Post("/tenants/{tenantID}/activate", h.Activate)
	r.Post("/tenants/{tenantID}/deactivate", h.Deactivate)
	r.Post("/tenants/{tenantID}/renew", h.Renew)
	r.Get("/audit", h.Audit)

	if claims != nil {
		req = req.WithContext(context.WithValue(req.Context(), middleware.ClaimsKey, claims))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"uppercase id", `{"id":"Acme","displayName":"Acme","ownerEmail":"o@acme.test","ownerName":"Owner","ownerPassword":"longenough123"}`},
		{"id with dashes", `{"id":"ac-me","displayName":"Acme","ownerEmail":"o@acme.test","ownerName":"Owner","ownerPassword":"longenough123"}`},
		{"bad owner email", `{"id":"acme","displayName":"Acme","ownerEmail":"not-an-email","ownerName":"Owner","ownerPassword":"longenough123"}`},
		{"short password", `{"id":"acme","displayName":"Acme","ownerEmail":"o@acme.test","ownerName":"Owner","ownerPassword":"short"}`},
		{"reserved id", `{"id":"system","displayName":"Sys","ownerEmail":"o@acme.test","ownerName":"Owner","ownerPassword":"longenough123"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mock, _ := newTestHandler(t)

			rec := serve(h, nil, postJSON("/tenants", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("database touched on invalid input: %v", err)
			}
		})
	}
}

func TestCreateRejectsDuplicateOwner(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`SELECT (.+) FROM tenants\s+WHERE owner_email = \$1`).
		WithArgs("o@acme.test").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "display_name", "owner_email", "is_active", "expires_at", "connection_info", "created_at", "updated_at",
		}).AddRow("acme", "Acme", "o@acme.test", true, nil, nil, time.Now(), time.Now()))

	body := `{"id":"globex","displayName":"Globex","ownerEmail":"o@acme.test","ownerName":"Owner","ownerPassword":"longenough123"}`
	rec := serve(h, nil, postJSON("/tenants", body))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}

	var env httputil.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Messages[0].Code != "owner_exists" {
		t.Errorf("code = %q, want owner_exists", env.Messages[0].Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeactivateSystemTenantForbidden(t *testing.T) {
	h, mock, cache := newTestHandler(t)

	rec := serve(h, nil, postJSON("/tenants/system/deactivate", ""))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if len(cache.ids) != 0 {
		t.Errorf("cache invalidated %v, want nothing", cache.ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("database touched: %v", err)
	}
}

func TestActivateInvalidatesCache(t *testing.T) {
	h, mock, cache := newTestHandler(t)

	mock.ExpectExec(`UPDATE tenants\s+SET is_active = \$1`).
		WithArgs(true, "acme").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM tenants\s+WHERE id = \$1`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "display_name", "owner_email", "is_active", "expires_at", "connection_info", "created_at", "updated_at",
		}).AddRow("acme", "Acme", "o@acme.test", true, nil, nil, time.Now(), time.Now()))

	rec := serve(h, nil, postJSON("/tenants/acme/activate", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(cache.ids) != 1 || cache.ids[0] != "acme" {
		t.Errorf("cache invalidations = %v, want [acme]", cache.ids)
	}

	var env struct {
		Data tenantView `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !env.Data.IsActive || env.Data.ID != "acme" {
		t.Errorf("data = %+v, want active acme", env.Data)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestActivateUnknownTenant(t *testing.T) {
	h, mock, cache := newTestHandler(t)

	mock.ExpectExec(`UPDATE tenants\s+SET is_active = \$1`).
		WithArgs(true, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := serve(h, nil, postJSON("/tenants/ghost/activate", ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if len(cache.ids) != 0 {
		t.Errorf("cache invalidated %v for unknown tenant", cache.ids)
	}
}

func TestRenewRejectsPastDate(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	past := time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	rec := serve(h, nil, postJSON("/tenants/acme/renew", `{"expiresAt":"`+past+`"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("database touched on past date: %v", err)
	}
}

func TestAuditRequiresCaller(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := serve(h, nil, httptest.NewRequest(http.MethodGet, "/audit", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuditListsCallerRecords(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	actorID := uuid.New()
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: actorID.String()},
		Email:            "root@system.test",
		Tenant:           "system",
	}

	mock.ExpectQuery(`SELECT (.+) FROM cross_tenant_audit\s+WHERE actor_id = \$1`).
		WithArgs(actorID, 100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "actor_id", "from_tenant", "to_tenant", "operation_name", "succeeded", "created_at",
		}).AddRow(uuid.New(), actorID, "system", "acme", "users.list", true, time.Now()))

	rec := serve(h, claims, httptest.NewRequest(http.MethodGet, "/audit", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var env httputil.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	items, ok := env.Items.([]any)
	if !ok || len(items) != 1 {
		t.Errorf("items = %v, want one record", env.Items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
