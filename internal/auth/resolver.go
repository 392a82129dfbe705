package auth

import (
	"context"
	"fmt"

	"github.com/upb/workspace-authz/models"
	"go.uber.org/zap"
)

// AssignmentStore is the persistence collaborator of the resolver. Implementations
// must fail the whole query when any row cannot be decoded.
type AssignmentStore interface {
	QueryAssignments(ctx context.Context, userID string, filter models.OrgFilter) ([]*models.RoleAssignment, error)
}

// Recorder receives authorization outcomes. It must not influence them.
type Recorder interface {
	RecordDecision(permission string, allowed bool)
	RecordRetrievalFailure(operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, bool)   {}
func (nopRecorder) RecordRetrievalFailure(string) {}

// Resolver answers permission and role questions for a user in an optional
// organization context. It holds no mutable state; every method performs exactly
// one store query.
//
// Any retrieval failure is logged and reported as "no assignments", so callers see
// a deny rather than an error.
type Resolver struct {
	store   AssignmentStore
	catalog *Catalog
	metrics Recorder
	logger  *zap.Logger
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithCatalog replaces the default role table.
func WithCatalog(c *Catalog) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.catalog = c
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) ResolverOption {
	return func(r *Resolver) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// NewResolver creates a new Resolver
func NewResolver(store AssignmentStore, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		store:   store,
		catalog: defaultCatalog,
		metrics: nopRecorder{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the role table used by the resolver.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// RoleAssignments returns the user's assignments scoped to orgID plus all global
// ones. An empty orgID means no organization context: only global assignments apply.
func (r *Resolver) RoleAssignments(ctx context.Context, userID, orgID string) []*models.RoleAssignment {
	if orgID == "" {
		return r.query(ctx, "role_assignments", userID, models.GlobalOnly())
	}
	return r.query(ctx, "role_assignments", userID, models.InOrganizationOrGlobal(orgID))
}

// GlobalRoleAssignments returns the user's assignments with no organization.
func (r *Resolver) GlobalRoleAssignments(ctx context.Context, userID string) []*models.RoleAssignment {
	return r.query(ctx, "global_role_assignments", userID, models.GlobalOnly())
}

// AllRoleAssignments returns every assignment of the user.
func (r *Resolver) AllRoleAssignments(ctx context.Context, userID string) []*models.RoleAssignment {
	return r.query(ctx, "all_role_assignments", userID, models.AnyOrganization())
}

// HasPermission reports whether any role applicable in orgID grants permission.
// Roles are additive.
func (r *Resolver) HasPermission(ctx context.Context, userID string, permission models.Permission, orgID string) bool {
	allowed := false
	for _, a := range r.RoleAssignments(ctx, userID, orgID) {
		if r.catalog.RoleHasPermission(a.Role, permission) {
			allowed = true
			break
		}
	}

	r.metrics.RecordDecision(permission.String(), allowed)
	r.logger.Debug("permission evaluated",
		zap.String("user_id", userID),
		zap.String("org_id", orgID),
		zap.String("permission", permission.String()),
		zap.Bool("allowed", allowed))

	return allowed
}

// Permissions returns the union of permissions applicable to the user in orgID.
func (r *Resolver) Permissions(ctx context.Context, userID, orgID string) PermissionSet {
	set := NewPermissionSet()
	for _, a := range r.RoleAssignments(ctx, userID, orgID) {
		set.Add(r.catalog.PermissionsOf(a.Role))
	}
	return set
}

// IsGlobalAdmin reports whether the user holds a global admin assignment.
func (r *Resolver) IsGlobalAdmin(ctx context.Context, userID string) bool {
	return hasGlobalAdmin(r.GlobalRoleAssignments(ctx, userID))
}

// EffectiveRole picks the single role representing the user inside orgID.
//
// Assignments scoped to orgID win, highest priority first. Without any, only a
// global admin carries over; other global roles do not apply inside an
// organization. The second result is false when the user has no role there.
func (r *Resolver) EffectiveRole(ctx context.Context, userID, orgID string) (models.Role, bool) {
	assignments := r.RoleAssignments(ctx, userID, orgID)

	var best *models.RoleAssignment
	for _, a := range assignments {
		if !a.ScopedTo(orgID) {
			continue
		}
		if best == nil || a.Role.Outranks(best.Role) {
			best = a
		}
	}
	if best != nil {
		return best.Role, true
	}

	if hasGlobalAdmin(assignments) {
		return models.RoleAdmin, true
	}
	return "", false
}

func (r *Resolver) query(ctx context.Context, op, userID string, filter models.OrgFilter) []*models.RoleAssignment {
	rows, err := r.store.QueryAssignments(ctx, userID, filter)
	if err == nil {
		err = validateRows(rows)
	}
	if err != nil {
		r.metrics.RecordRetrievalFailure(op)
		r.logger.Warn("role assignment retrieval failed, treating as no assignments",
			zap.String("operation", op),
			zap.String("user_id", userID),
			zap.Stringer("filter", filter),
			zap.Error(err))
		return []*models.RoleAssignment{}
	}
	if rows == nil {
		return []*models.RoleAssignment{}
	}
	return rows
}

func validateRows(rows []*models.RoleAssignment) error {
	for _, a := range rows {
		if a == nil {
			return fmt.Errorf("nil role assignment in result")
		}
		if !a.Role.IsValid() {
			return fmt.Errorf("assignment %s: %w: %q", a.ID, models.ErrUnknownRole, string(a.Role))
		}
	}
	return nil
}

func hasGlobalAdmin(assignments []*models.RoleAssignment) bool {
	for _, a := range assignments {
		if a.IsGlobal() && a.Role == models.RoleAdmin {
			return true
		}
	}
	return false
}
