package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/services/audit"
	"github.com/upb/workspace-authz/utils"
	"go.uber.org/zap"
)

// OrgIDParam is the chi URL parameter holding an organization ID
const OrgIDParam = "orgID"

// PermissionGate defines the checks the authorizer delegates to
type PermissionGate interface {
	Authorize(ctx context.Context, userID string, permission models.Permission, opts ...auth.CheckOption) (string, error)
	RequireGlobalAdmin(ctx context.Context, userID string) error
}

// DenialAuditor records rejected checks. Implementations must not block.
type DenialAuditor interface {
	LogPermissionDenied(actorID string, permission models.Permission, orgID string, req audit.RequestInfo) error
}

// Authorizer turns gate checks into route middleware
type Authorizer struct {
	gate    PermissionGate
	auditor DenialAuditor
	logger  *zap.Logger
}

// NewAuthorizer creates a new Authorizer. auditor may be nil.
func NewAuthorizer(gate PermissionGate, auditor DenialAuditor, logger *zap.Logger) *Authorizer {
	return &Authorizer{gate: gate, auditor: auditor, logger: logger}
}

// RequirePermission admits the request only if the caller holds permission in
// the organization resolved from opts, the tenant header, then the orgID path
// parameter. The resolved organization is stored back into the context.
func (a *Authorizer) RequirePermission(permission models.Permission, opts ...auth.CheckOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			userID := GetUserIDFromContext(ctx)
			if userID == "" {
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			pathOrg := chi.URLParam(r, OrgIDParam)
			if headerOrg := auth.OrganizationFromContext(ctx); pathOrg != "" && headerOrg != "" && headerOrg != pathOrg {
				a.logger.Warn("organization header does not match path",
					zap.String("request_id", requestID),
					zap.String("header_org_id", headerOrg),
					zap.String("path_org_id", pathOrg))
				_ = utils.WriteBadRequest(w, "Organization header does not match path", map[string]interface{}{
					"organization_id": pathOrg,
				})
				return
			}

			checkOpts := append([]auth.CheckOption{auth.WithPathOrganization(pathOrg)}, opts...)
			orgID, err := a.gate.Authorize(ctx, userID, permission, checkOpts...)
			if err != nil {
				a.reject(w, r, userID, permission, err)
				return
			}

			if orgID != "" {
				ctx = auth.WithOrganization(ctx, orgID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireGlobalAdmin admits only callers holding a global admin assignment
func (a *Authorizer) RequireGlobalAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID := GetUserIDFromContext(ctx)
		if userID == "" {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		if err := a.gate.RequireGlobalAdmin(ctx, userID); err != nil {
			a.reject(w, r, userID, models.PermAdminSettings, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authorizer) reject(w http.ResponseWriter, r *http.Request, userID string, permission models.Permission, err error) {
	ctx := r.Context()
	requestID := GetRequestIDFromContext(ctx)

	var denied *auth.PermissionDeniedError
	switch {
	case errors.Is(err, auth.ErrOrganizationRequired):
		a.logger.Info("organization context required",
			zap.String("request_id", requestID),
			zap.String("user_id", userID),
			zap.String("permission", permission.String()))
		_ = utils.WriteUnauthorized(w, "Organization context required")

	case errors.As(err, &denied):
		a.logger.Info("permission denied",
			zap.String("request_id", requestID),
			zap.String("user_id", userID),
			zap.String("permission", denied.Permission.String()),
			zap.String("org_id", denied.OrganizationID))
		a.auditDenial(r, userID, denied.Permission, denied.OrganizationID)
		_ = utils.WriteForbidden(w, "Insufficient permissions", map[string]interface{}{
			"permission":      denied.Permission.String(),
			"organization_id": denied.OrganizationID,
		})

	case errors.Is(err, auth.ErrGlobalAdminRequired):
		a.logger.Info("global admin required",
			zap.String("request_id", requestID),
			zap.String("user_id", userID))
		a.auditDenial(r, userID, permission, "")
		_ = utils.WriteForbidden(w, "Global administrator required", nil)

	default:
		a.logger.Error("authorization check failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
	}
}

func (a *Authorizer) auditDenial(r *http.Request, userID string, permission models.Permission, orgID string) {
	if a.auditor == nil {
		return
	}
	info := audit.RequestInfoFromContext(r.Context())
	if err := a.auditor.LogPermissionDenied(userID, permission, orgID, info); err != nil {
		a.logger.Debug("denial not audited", zap.Error(err))
	}
}
