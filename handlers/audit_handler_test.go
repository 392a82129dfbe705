package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/services"
	"github.com/upb/workspace-authz/services/assignment"
	"go.uber.org/zap"
)

// MockAuditLogReader is a mock implementation of AuditLogReader
type MockAuditLogReader struct {
	mock.Mock
}

func (m *MockAuditLogReader) ListForOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, orgID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditLogReader) ListForActor(ctx context.Context, actorID string, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, actorID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditLogReader) Get(ctx context.Context, id uuid.UUID, orgID string) (*models.AuditLog, error) {
	args := m.Called(ctx, id, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditLog), args.Error(1)
}

func newAuditLogRouter(reader AuditLogReader) http.Handler {
	h := NewAuditLogHandler(reader, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/organizations/{orgID}/audit-logs", h.HandleListForOrganization)
	r.Get("/organizations/{orgID}/audit-logs/{auditLogID}", h.HandleGetForOrganization)
	r.Get("/admin/audit-logs", h.HandleListForActor)
	r.Get("/admin/audit-logs/{auditLogID}", h.HandleGet)
	return r
}

func auditEntry(orgID string) *models.AuditLog {
	org := orgID
	return &models.AuditLog{
		ID:             uuid.New(),
		OrganizationID: &org,
		ActorID:        "admin-1",
		Action:         models.AuditActionRoleAssigned,
		ResourceType:   "role_assignment",
		Details:        json.RawMessage(`{"role":"writer"}`),
		Timestamp:      time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600)),
	}
}

func TestAuditLogHandler_ListForOrganization(t *testing.T) {
	t.Run("page is clamped before the read", func(t *testing.T) {
		reader := new(MockAuditLogReader)
		entry := auditEntry("org-1")
		reader.On("ListForOrganization", mock.Anything, "org-1", assignment.MaxPageSize, 10).
			Return([]*models.AuditLog{entry}, nil)

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/organizations/org-1/audit-logs?limit=5000&offset=10", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp AuditLogListResponse
		decodeData(t, w, &resp)
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, assignment.MaxPageSize, resp.Limit)
		assert.Equal(t, 10, resp.Offset)
		require.Len(t, resp.AuditLogs, 1)
		assert.Equal(t, entry.ID.String(), resp.AuditLogs[0].ID)
		assert.Equal(t, "2026-03-04T04:06:07Z", resp.AuditLogs[0].Timestamp)
		reader.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		reader := new(MockAuditLogReader)
		reader.On("ListForOrganization", mock.Anything, "org-1", assignment.DefaultPageSize, 0).
			Return([]*models.AuditLog{}, nil)

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/organizations/org-1/audit-logs", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"audit_logs":[]`)
	})

	t.Run("non-numeric limit", func(t *testing.T) {
		reader := new(MockAuditLogReader)

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/organizations/org-1/audit-logs?limit=ten", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		reader.AssertNumberOfCalls(t, "ListForOrganization", 0)
	})

	t.Run("storage failure", func(t *testing.T) {
		reader := new(MockAuditLogReader)
		reader.On("ListForOrganization", mock.Anything, "org-1", assignment.DefaultPageSize, 0).
			Return(nil, services.WrapInternal("failed to list audit logs", errors.New("boom")))

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/organizations/org-1/audit-logs", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "boom")
	})
}

func TestAuditLogHandler_GetForOrganization(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		reader := new(MockAuditLogReader)
		entry := auditEntry("org-1")
		reader.On("Get", mock.Anything, entry.ID, "org-1").Return(entry, nil)

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/organizations/org-1/audit-logs/"+entry.ID.String(), "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp AuditLogResponse
		decodeData(t, w, &resp)
		assert.Equal(t, models.AuditActionRoleAssigned, resp.Action)
		require.NotNil(t, resp.OrganizationID)
		assert.Equal(t, "org-1", *resp.OrganizationID)
	})

	t.Run("entry of another organization", func(t *testing.T) {
		reader := new(MockAuditLogReader)
		id := uuid.New()
		reader.On("Get", mock.Anything, id, "org-1").Return(nil, services.ErrAuditLogNotFound)

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/organizations/org-1/audit-logs/"+id.String(), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		reader := new(MockAuditLogReader)

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/organizations/org-1/audit-logs/not-a-uuid", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		reader.AssertNumberOfCalls(t, "Get", 0)
	})
}

func TestAuditLogHandler_Admin(t *testing.T) {
	t.Run("list by actor", func(t *testing.T) {
		reader := new(MockAuditLogReader)
		reader.On("ListForActor", mock.Anything, "admin-1", 5, 0).
			Return([]*models.AuditLog{auditEntry("org-1"), auditEntry("org-2")}, nil)

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/admin/audit-logs?actor_id=%20admin-1%20&limit=5", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp AuditLogListResponse
		decodeData(t, w, &resp)
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, 5, resp.Limit)
	})

	t.Run("missing actor", func(t *testing.T) {
		reader := new(MockAuditLogReader)
		reader.On("ListForActor", mock.Anything, "", assignment.DefaultPageSize, 0).
			Return(nil, services.NewDomainError(services.ErrorTypeValidation, "actor_id is required", nil))

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/admin/audit-logs", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get is not scoped", func(t *testing.T) {
		reader := new(MockAuditLogReader)
		entry := auditEntry("org-9")
		reader.On("Get", mock.Anything, entry.ID, "").Return(entry, nil)

		w := serve(newAuditLogRouter(reader), http.MethodGet, "/admin/audit-logs/"+entry.ID.String(), "")

		assert.Equal(t, http.StatusOK, w.Code)
		reader.AssertExpectations(t)
	})
}
