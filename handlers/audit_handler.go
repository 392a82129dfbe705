package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/workspace-authz/middleware"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/utils"
	"go.uber.org/zap"
)

// AuditLogIDParam is the URL parameter naming an audit log entry
const AuditLogIDParam = "auditLogID"

// AuditLogReader defines the read side of the audit trail used by AuditLogHandler
type AuditLogReader interface {
	ListForOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditLog, error)
	ListForActor(ctx context.Context, actorID string, limit, offset int) ([]*models.AuditLog, error)
	Get(ctx context.Context, id uuid.UUID, orgID string) (*models.AuditLog, error)
}

// AuditLogHandler serves stored audit entries
type AuditLogHandler struct {
	reader AuditLogReader
	logger *zap.Logger
}

// NewAuditLogHandler creates a new audit log handler
func NewAuditLogHandler(reader AuditLogReader, logger *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{reader: reader, logger: logger}
}

// AuditLogResponse represents an audit entry in API responses
type AuditLogResponse struct {
	ID             string             `json:"id"`
	OrganizationID *string            `json:"organization_id,omitempty"`
	ActorID        string             `json:"actor_id"`
	Action         models.AuditAction `json:"action"`
	ResourceType   string             `json:"resource_type"`
	ResourceID     *string            `json:"resource_id,omitempty"`
	Details        json.RawMessage    `json:"details,omitempty"`
	IPAddress      string             `json:"ip_address,omitempty"`
	RequestID      string             `json:"request_id,omitempty"`
	Timestamp      string             `json:"timestamp"`
}

// AuditLogListResponse represents a page of audit entries
type AuditLogListResponse struct {
	AuditLogs []AuditLogResponse `json:"audit_logs"`
	Count     int                `json:"count"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// HandleListForOrganization handles GET /organizations/{orgID}/audit-logs
func (h *AuditLogHandler) HandleListForOrganization(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageFromQuery(r)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	logs, err := h.reader.ListForOrganization(r.Context(), chi.URLParam(r, middleware.OrgIDParam), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toAuditLogListResponse(logs, limit, offset))
}

// HandleGetForOrganization handles GET /organizations/{orgID}/audit-logs/{auditLogID}
func (h *AuditLogHandler) HandleGetForOrganization(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, chi.URLParam(r, middleware.OrgIDParam))
}

// HandleListForActor handles GET /admin/audit-logs?actor_id=
func (h *AuditLogHandler) HandleListForActor(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageFromQuery(r)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	actorID := strings.TrimSpace(r.URL.Query().Get("actor_id"))
	logs, err := h.reader.ListForActor(r.Context(), actorID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toAuditLogListResponse(logs, limit, offset))
}

// HandleGet handles GET /admin/audit-logs/{auditLogID}
func (h *AuditLogHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, "")
}

func (h *AuditLogHandler) get(w http.ResponseWriter, r *http.Request, orgID string) {
	id, err := utils.ParseUUID(chi.URLParam(r, AuditLogIDParam), "audit_log_id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	entry, err := h.reader.Get(r.Context(), id, orgID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, toAuditLogResponse(entry))
}

func toAuditLogResponse(l *models.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:             l.ID.String(),
		OrganizationID: l.OrganizationID,
		ActorID:        l.ActorID,
		Action:         l.Action,
		ResourceType:   l.ResourceType,
		ResourceID:     l.ResourceID,
		Details:        l.Details,
		IPAddress:      l.IPAddress,
		RequestID:      l.RequestID,
		Timestamp:      l.Timestamp.UTC().Format(time.RFC3339),
	}
}

func toAuditLogListResponse(logs []*models.AuditLog, limit, offset int) AuditLogListResponse {
	resp := AuditLogListResponse{
		AuditLogs: make([]AuditLogResponse, 0, len(logs)),
		Limit:     limit,
		Offset:    offset,
	}
	for _, l := range logs {
		resp.AuditLogs = append(resp.AuditLogs, toAuditLogResponse(l))
	}
	resp.Count = len(resp.AuditLogs)
	return resp
}
