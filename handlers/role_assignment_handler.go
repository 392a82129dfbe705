package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/workspace-authz/middleware"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/services/assignment"
	"github.com/upb/workspace-authz/utils"
	"go.uber.org/zap"
)

// Path parameters used by the role assignment routes
const (
	AssignmentIDParam = "assignmentID"
	UserIDParam       = "userID"
)

// OrganizationAssignmentRequest creates an assignment inside the organization
// named by the path
type OrganizationAssignmentRequest struct {
	UserID string      `json:"user_id" validate:"required,max=255"`
	Role   models.Role `json:"role" validate:"required,role"`
}

// RoleAssignmentResponse represents a role assignment in API responses
type RoleAssignmentResponse struct {
	ID             uuid.UUID   `json:"id"`
	UserID         string      `json:"user_id"`
	Role           models.Role `json:"role"`
	OrganizationID *string     `json:"organization_id"`
	Global         bool        `json:"global"`
	AssignedBy     string      `json:"assigned_by,omitempty"`
	CreatedAt      string      `json:"created_at"`
}

// RoleAssignmentListResponse wraps a page of assignments
type RoleAssignmentListResponse struct {
	Assignments []RoleAssignmentResponse `json:"assignments"`
	Count       int                      `json:"count"`
	Limit       int                      `json:"limit,omitempty"`
	Offset      int                      `json:"offset,omitempty"`
}

// AssignmentService defines the role management operations used by the handlers
type AssignmentService interface {
	Assign(ctx context.Context, actorID string, req assignment.AssignRequest) (*models.RoleAssignment, error)
	Revoke(ctx context.Context, actorID string, assignmentID uuid.UUID, orgID string) error
	ListForUser(ctx context.Context, actorID, userID string) ([]*models.RoleAssignment, error)
	ListForOrganization(ctx context.Context, actorID, orgID string, limit, offset int) ([]*models.RoleAssignment, error)
}

// RoleAssignmentHandler handles role assignment HTTP requests
type RoleAssignmentHandler struct {
	service AssignmentService
	logger  *zap.Logger
}

// NewRoleAssignmentHandler creates a new RoleAssignmentHandler
func NewRoleAssignmentHandler(service AssignmentService, logger *zap.Logger) *RoleAssignmentHandler {
	return &RoleAssignmentHandler{
		service: service,
		logger:  logger,
	}
}

// HandleListForOrganization handles GET /organizations/{orgID}/role-assignments
func (h *RoleAssignmentHandler) HandleListForOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := chi.URLParam(r, middleware.OrgIDParam)

	limit, offset, err := pageFromQuery(r)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	rows, err := h.service.ListForOrganization(ctx, middleware.GetUserIDFromContext(ctx), orgID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	resp := toListResponse(rows)
	resp.Limit, resp.Offset = limit, offset
	_ = utils.WriteOK(w, resp)
}

// HandleCreateForOrganization handles POST /organizations/{orgID}/role-assignments
func (h *RoleAssignmentHandler) HandleCreateForOrganization(w http.ResponseWriter, r *http.Request) {
	var req OrganizationAssignmentRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	h.assign(w, r, assignment.AssignRequest{
		UserID:         req.UserID,
		Role:           req.Role,
		OrganizationID: chi.URLParam(r, middleware.OrgIDParam),
	})
}

// HandleDeleteForOrganization handles DELETE /organizations/{orgID}/role-assignments/{assignmentID}
func (h *RoleAssignmentHandler) HandleDeleteForOrganization(w http.ResponseWriter, r *http.Request) {
	h.revoke(w, r, chi.URLParam(r, middleware.OrgIDParam))
}

// HandleCreate handles POST /admin/role-assignments. The body may name any
// organization or none for a global assignment.
func (h *RoleAssignmentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req assignment.AssignRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	h.assign(w, r, req)
}

// HandleDelete handles DELETE /admin/role-assignments/{assignmentID}
func (h *RoleAssignmentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.revoke(w, r, "")
}

// HandleListForUser handles GET /admin/users/{userID}/role-assignments
func (h *RoleAssignmentHandler) HandleListForUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows, err := h.service.ListForUser(ctx, middleware.GetUserIDFromContext(ctx), chi.URLParam(r, UserIDParam))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, toListResponse(rows))
}

func (h *RoleAssignmentHandler) assign(w http.ResponseWriter, r *http.Request, req assignment.AssignRequest) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	a, err := h.service.Assign(ctx, middleware.GetUserIDFromContext(ctx), req)
	if err != nil {
		h.logger.Debug("role assignment rejected",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, toRoleAssignmentResponse(a))
}

func (h *RoleAssignmentHandler) revoke(w http.ResponseWriter, r *http.Request, orgID string) {
	ctx := r.Context()

	id, err := utils.ParseUUID(chi.URLParam(r, AssignmentIDParam), "assignment_id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.service.Revoke(ctx, middleware.GetUserIDFromContext(ctx), id, orgID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// pageFromQuery reads limit and offset, normalized with assignment.NormalizePage
func pageFromQuery(r *http.Request) (int, int, error) {
	limit, err := utils.QueryInt(r, "limit", assignment.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	offset, err := utils.QueryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, offset = assignment.NormalizePage(limit, offset)
	return limit, offset, nil
}

func toRoleAssignmentResponse(a *models.RoleAssignment) RoleAssignmentResponse {
	return RoleAssignmentResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		Role:           a.Role,
		OrganizationID: a.OrganizationID,
		Global:         a.IsGlobal(),
		AssignedBy:     a.AssignedBy,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toListResponse(rows []*models.RoleAssignment) RoleAssignmentListResponse {
	out := make([]RoleAssignmentResponse, len(rows))
	for i, a := range rows {
		out[i] = toRoleAssignmentResponse(a)
	}
	return RoleAssignmentListResponse{Assignments: out, Count: len(out)}
}
