package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/middleware"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/utils"
	"go.uber.org/zap"
)

// PermissionResolver answers read-only authorization questions
type PermissionResolver interface {
	AllRoleAssignments(ctx context.Context, userID string) []*models.RoleAssignment
	Permissions(ctx context.Context, userID, orgID string) auth.PermissionSet
	HasPermission(ctx context.Context, userID string, permission models.Permission, orgID string) bool
	EffectiveRole(ctx context.Context, userID, orgID string) (models.Role, bool)
	IsGlobalAdmin(ctx context.Context, userID string) bool
	Catalog() *auth.Catalog
}

// PermissionsResponse describes what a user may do in one organization
type PermissionsResponse struct {
	UserID         string              `json:"user_id"`
	OrganizationID string              `json:"organization_id,omitempty"`
	Role           models.Role         `json:"role,omitempty"`
	GlobalAdmin    bool                `json:"global_admin"`
	Permissions    []models.Permission `json:"permissions"`
}

// AuthorizeResponse is the answer to a single permission check
type AuthorizeResponse struct {
	Permission     models.Permission `json:"permission"`
	OrganizationID string            `json:"organization_id,omitempty"`
	Allowed        bool              `json:"allowed"`
}

// EffectiveRoleResponse reports the role representing a user inside an organization
type EffectiveRoleResponse struct {
	UserID         string      `json:"user_id"`
	OrganizationID string      `json:"organization_id"`
	Role           models.Role `json:"role,omitempty"`
	HasRole        bool        `json:"has_role"`
}

// CatalogRole lists one role and what it grants
type CatalogRole struct {
	Role        models.Role         `json:"role"`
	Priority    int                 `json:"priority"`
	Permissions []models.Permission `json:"permissions"`
}

// CatalogResponse is the full role-permission table
type CatalogResponse struct {
	Roles       []CatalogRole       `json:"roles"`
	Permissions []models.Permission `json:"permissions"`
}

// AuthorizationHandler serves permission queries
type AuthorizationHandler struct {
	resolver PermissionResolver
	logger   *zap.Logger
}

// NewAuthorizationHandler creates a new AuthorizationHandler
func NewAuthorizationHandler(resolver PermissionResolver, logger *zap.Logger) *AuthorizationHandler {
	return &AuthorizationHandler{
		resolver: resolver,
		logger:   logger,
	}
}

// HandleMyRoles handles GET /me/roles
func (h *AuthorizationHandler) HandleMyRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)

	_ = utils.WriteOK(w, toListResponse(h.resolver.AllRoleAssignments(ctx, userID)))
}

// HandleMyPermissions handles GET /me/permissions. The organization comes from
// the organization_id query parameter, then the tenant header. Without either
// only global assignments are considered.
func (h *AuthorizationHandler) HandleMyPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)
	orgID := requestedOrganization(r)

	resp := PermissionsResponse{
		UserID:         userID,
		OrganizationID: orgID,
		GlobalAdmin:    h.resolver.IsGlobalAdmin(ctx, userID),
		Permissions:    h.resolver.Permissions(ctx, userID, orgID).Sorted(),
	}
	if orgID != "" {
		if role, ok := h.resolver.EffectiveRole(ctx, userID, orgID); ok {
			resp.Role = role
		}
	}

	_ = utils.WriteOK(w, resp)
}

// AuthorizeRequest holds the query parameters of GET /me/authorize
type AuthorizeRequest struct {
	Permission     models.Permission `json:"permission" validate:"required,permission"`
	OrganizationID string            `json:"organization_id" validate:"max=255"`
}

// HandleAuthorize handles GET /me/authorize?permission=
func (h *AuthorizationHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)

	req := AuthorizeRequest{
		Permission:     models.Permission(strings.TrimSpace(r.URL.Query().Get("permission"))),
		OrganizationID: requestedOrganization(r),
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	allowed := h.resolver.HasPermission(ctx, userID, req.Permission, req.OrganizationID)

	h.logger.Debug("permission queried",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("user_id", userID),
		zap.String("permission", req.Permission.String()),
		zap.String("org_id", req.OrganizationID),
		zap.Bool("allowed", allowed))

	_ = utils.WriteOK(w, AuthorizeResponse{
		Permission:     req.Permission,
		OrganizationID: req.OrganizationID,
		Allowed:        allowed,
	})
}

// HandleEffectiveRole handles GET /organizations/{orgID}/users/{userID}/role
func (h *AuthorizationHandler) HandleEffectiveRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := chi.URLParam(r, middleware.OrgIDParam)
	userID := chi.URLParam(r, UserIDParam)

	role, ok := h.resolver.EffectiveRole(ctx, userID, orgID)
	_ = utils.WriteOK(w, EffectiveRoleResponse{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           role,
		HasRole:        ok,
	})
}

// HandleCatalog handles GET /admin/catalog
func (h *AuthorizationHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := h.resolver.Catalog()

	roles := catalog.Roles()
	resp := CatalogResponse{
		Roles:       make([]CatalogRole, 0, len(roles)),
		Permissions: models.AllPermissions(),
	}
	for _, role := range roles {
		resp.Roles = append(resp.Roles, CatalogRole{
			Role:        role,
			Priority:    role.Priority(),
			Permissions: catalog.PermissionsOf(role).Sorted(),
		})
	}

	_ = utils.WriteOK(w, resp)
}

func requestedOrganization(r *http.Request) string {
	if orgID := strings.TrimSpace(r.URL.Query().Get("organization_id")); orgID != "" {
		return orgID
	}
	return middleware.GetOrgIDFromContext(r.Context())
}
