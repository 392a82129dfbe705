package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/services/audit"
	"github.com/upb/workspace-authz/utils"
	"go.uber.org/zap"
)

// tableChecker answers from a fixed (user, org) -> role table
type tableChecker struct {
	roles        map[string]map[string]models.Role
	globalAdmins map[string]bool
}

func (c *tableChecker) HasPermission(_ context.Context, userID string, p models.Permission, orgID string) bool {
	if c.globalAdmins[userID] {
		return true
	}
	role, ok := c.roles[userID][orgID]
	return ok && auth.RoleHasPermission(role, p)
}

func (c *tableChecker) IsGlobalAdmin(_ context.Context, userID string) bool {
	return c.globalAdmins[userID]
}

type MockDenialAuditor struct {
	mock.Mock
}

func (m *MockDenialAuditor) LogPermissionDenied(actorID string, p models.Permission, orgID string, req audit.RequestInfo) error {
	return m.Called(actorID, p, orgID, req).Error(0)
}

func newTestAuthorizer(auditor DenialAuditor) *Authorizer {
	checker := &tableChecker{
		roles: map[string]map[string]models.Role{
			"alice": {"org-1": models.RoleAdmin},
			"bob":   {"org-1": models.RoleViewer},
		},
		globalAdmins: map[string]bool{"root": true},
	}
	return NewAuthorizer(auth.NewGate(checker, zap.NewNop()), auditor, zap.NewNop())
}

func authenticated(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), &auth.Principal{Subject: userID}))
}

func okHandler(gotOrg *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotOrg != nil {
			*gotOrg = GetOrgIDFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthorizer_RequirePermission_PathOrganization(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		permission models.Permission
		path       string
		wantStatus int
	}{
		{"admin may create users", "alice", models.PermUserCreate, "/organizations/org-1/users", http.StatusOK},
		{"viewer may read blocks", "bob", models.PermBlockRead, "/organizations/org-1/users", http.StatusOK},
		{"viewer may not create users", "bob", models.PermUserCreate, "/organizations/org-1/users", http.StatusForbidden},
		{"admin elsewhere is denied", "alice", models.PermUserRead, "/organizations/org-2/users", http.StatusForbidden},
		{"global admin everywhere", "root", models.PermAdminSettings, "/organizations/org-9/users", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authz := newTestAuthorizer(nil)

			var gotOrg string
			r := chi.NewRouter()
			r.With(authz.RequirePermission(tt.permission)).Get("/organizations/{orgID}/users", okHandler(&gotOrg).ServeHTTP)

			req := authenticated(httptest.NewRequest(http.MethodGet, tt.path, nil), tt.userID)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.NotEmpty(t, gotOrg, "resolved organization is stored in the context")
			}
		})
	}
}

func TestAuthorizer_RequirePermission_DeniedResponse(t *testing.T) {
	auditor := new(MockDenialAuditor)
	auditor.On("LogPermissionDenied", "bob", models.PermUserDelete, "org-1", mock.AnythingOfType("audit.RequestInfo")).Return(nil)
	authz := newTestAuthorizer(auditor)

	r := chi.NewRouter()
	r.With(authz.RequirePermission(models.PermUserDelete)).Delete("/organizations/{orgID}/x", okHandler(nil).ServeHTTP)

	req := authenticated(httptest.NewRequest(http.MethodDelete, "/organizations/org-1/x", nil), "bob")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)

	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "forbidden", body.Error)
	assert.Equal(t, "user:delete", body.Details["permission"])
	assert.Equal(t, "org-1", body.Details["organization_id"])
	auditor.AssertExpectations(t)
}

func TestAuthorizer_RequirePermission_AuditFailureDoesNotChangeResponse(t *testing.T) {
	auditor := new(MockDenialAuditor)
	auditor.On("LogPermissionDenied", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(audit.ErrBufferFull)
	authz := newTestAuthorizer(auditor)

	handler := authz.RequirePermission(models.PermUserCreate, auth.WithExplicitOrganization("org-1"))(okHandler(nil))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authenticated(httptest.NewRequest(http.MethodGet, "/", nil), "bob"))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthorizer_RequirePermission_OrganizationSources(t *testing.T) {
	authz := newTestAuthorizer(nil)

	t.Run("header organization used when no path parameter", func(t *testing.T) {
		var gotOrg string
		handler := authz.RequirePermission(models.PermUserRead)(okHandler(&gotOrg))

		req := authenticated(httptest.NewRequest(http.MethodGet, "/", nil), "alice")
		req = req.WithContext(auth.WithOrganization(req.Context(), "org-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "org-1", gotOrg)
	})

	t.Run("explicit organization wins over header", func(t *testing.T) {
		handler := authz.RequirePermission(models.PermUserRead, auth.WithExplicitOrganization("org-2"))(okHandler(nil))

		req := authenticated(httptest.NewRequest(http.MethodGet, "/", nil), "alice")
		req = req.WithContext(auth.WithOrganization(req.Context(), "org-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no organization skips the check", func(t *testing.T) {
		var gotOrg string
		handler := authz.RequirePermission(models.PermUserDelete)(okHandler(&gotOrg))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authenticated(httptest.NewRequest(http.MethodGet, "/", nil), "bob"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, gotOrg)
	})

	t.Run("no organization with RequireOrganization is 401", func(t *testing.T) {
		handler := authz.RequirePermission(models.PermUserRead, auth.RequireOrganization())(okHandler(nil))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authenticated(httptest.NewRequest(http.MethodGet, "/", nil), "alice"))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Organization context required")
	})

	t.Run("header and path disagreeing is rejected", func(t *testing.T) {
		r := chi.NewRouter()
		r.With(authz.RequirePermission(models.PermUserRead)).Get("/organizations/{orgID}", okHandler(nil).ServeHTTP)

		req := authenticated(httptest.NewRequest(http.MethodGet, "/organizations/org-1", nil), "alice")
		req = req.WithContext(auth.WithOrganization(req.Context(), "org-2"))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthorizer_RequirePermission_Unauthenticated(t *testing.T) {
	authz := newTestAuthorizer(nil)
	handler := authz.RequirePermission(models.PermBlockRead)(okHandler(nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// failingGate returns an unexpected error
type failingGate struct{}

func (failingGate) Authorize(context.Context, string, models.Permission, ...auth.CheckOption) (string, error) {
	return "", errors.New("boom")
}

func (failingGate) RequireGlobalAdmin(context.Context, string) error { return errors.New("boom") }

func TestAuthorizer_UnexpectedError(t *testing.T) {
	authz := NewAuthorizer(failingGate{}, nil, zap.NewNop())
	handler := authz.RequirePermission(models.PermBlockRead)(okHandler(nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authenticated(httptest.NewRequest(http.MethodGet, "/", nil), "alice"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuthorizer_RequireGlobalAdmin(t *testing.T) {
	auditor := new(MockDenialAuditor)
	auditor.On("LogPermissionDenied", "alice", models.PermAdminSettings, "", mock.Anything).Return(nil)
	authz := newTestAuthorizer(auditor)

	tests := []struct {
		name       string
		userID     string
		wantStatus int
	}{
		{"global admin", "root", http.StatusOK},
		{"org admin is not global", "alice", http.StatusForbidden},
		{"anonymous", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.userID != "" {
				req = authenticated(req, tt.userID)
			}
			w := httptest.NewRecorder()
			authz.RequireGlobalAdmin(okHandler(nil)).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
	auditor.AssertExpectations(t)
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeHTTPRecorder struct {
	got []recordedRequest
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	f.got = append(f.got, recordedRequest{method, route, status})
}

func TestMetrics(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(rec))
	r.Get("/organizations/{orgID}/role", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/implicit", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/organizations/org-1/role", "/implicit", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, rec.got, 3)
	assert.Equal(t, recordedRequest{"GET", "/organizations/{orgID}/role", http.StatusTeapot}, rec.got[0])
	assert.Equal(t, recordedRequest{"GET", "/implicit", http.StatusOK}, rec.got[1])
	assert.Equal(t, http.StatusNotFound, rec.got[2].status)
}
