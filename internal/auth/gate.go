package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/workspace-authz/models"
	"go.uber.org/zap"
)

var (
	// ErrOrganizationRequired is returned when a check demands an organization and none resolved
	ErrOrganizationRequired = errors.New("organization context required")
	// ErrGlobalAdminRequired is returned by the global admin gate
	ErrGlobalAdminRequired = errors.New("global admin role required")
)

// PermissionDeniedError identifies the permission and organization of a failed check.
type PermissionDeniedError struct {
	Permission     models.Permission
	OrganizationID string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission %s denied in organization %s", e.Permission, e.OrganizationID)
}

// IsPermissionDenied reports whether err is or wraps a *PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var denied *PermissionDeniedError
	return errors.As(err, &denied)
}

// Checker is the subset of Resolver used by the gate.
type Checker interface {
	HasPermission(ctx context.Context, userID string, permission models.Permission, orgID string) bool
	IsGlobalAdmin(ctx context.Context, userID string) bool
}

type checkOptions struct {
	explicitOrg string
	pathOrg     string
	requireOrg  bool
}

// CheckOption configures a single gate check.
type CheckOption func(*checkOptions)

// WithExplicitOrganization supplies a caller-chosen organization; it wins over every other source.
func WithExplicitOrganization(orgID string) CheckOption {
	return func(o *checkOptions) { o.explicitOrg = orgID }
}

// WithPathOrganization supplies the organization taken from a path parameter; it is used last.
func WithPathOrganization(orgID string) CheckOption {
	return func(o *checkOptions) { o.pathOrg = orgID }
}

// RequireOrganization rejects the check when no organization resolves instead of skipping it.
func RequireOrganization() CheckOption {
	return func(o *checkOptions) { o.requireOrg = true }
}

// ResolveOrganization picks the organization of a check: explicit value, then the
// request context, then the path parameter.
func ResolveOrganization(ctx context.Context, opts ...CheckOption) string {
	o := applyCheckOptions(opts)
	return o.resolve(ctx)
}

func applyCheckOptions(opts []CheckOption) *checkOptions {
	o := &checkOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *checkOptions) resolve(ctx context.Context) string {
	if o.explicitOrg != "" {
		return o.explicitOrg
	}
	if orgID := OrganizationFromContext(ctx); orgID != "" {
		return orgID
	}
	return o.pathOrg
}

// Gate guards organization-scoped operations.
type Gate struct {
	checker Checker
	logger  *zap.Logger
}

// NewGate creates a new Gate
func NewGate(checker Checker, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{checker: checker, logger: logger}
}

// Authorize checks permission for userID in the resolved organization and returns
// that organization. When none resolves the check is skipped, unless
// RequireOrganization was given.
func (g *Gate) Authorize(ctx context.Context, userID string, permission models.Permission, opts ...CheckOption) (string, error) {
	o := applyCheckOptions(opts)
	orgID := o.resolve(ctx)

	if orgID == "" {
		if o.requireOrg {
			return "", ErrOrganizationRequired
		}
		g.logger.Debug("no organization context, permission check skipped",
			zap.String("user_id", userID),
			zap.String("permission", permission.String()))
		return "", nil
	}

	if !g.checker.HasPermission(ctx, userID, permission, orgID) {
		return orgID, &PermissionDeniedError{Permission: permission, OrganizationID: orgID}
	}
	return orgID, nil
}

// RequireGlobalAdmin rejects unless userID holds a global admin assignment.
func (g *Gate) RequireGlobalAdmin(ctx context.Context, userID string) error {
	if !g.checker.IsGlobalAdmin(ctx, userID) {
		return ErrGlobalAdminRequired
	}
	return nil
}
