// Package assignment manages role assignments on behalf of an authenticated actor.
// Every mutation is authorized through the auth gate and written together with
// its audit row in one transaction.
package assignment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/repositories"
	"github.com/upb/workspace-authz/services"
	"github.com/upb/workspace-authz/services/audit"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// AssignRequest describes a new assignment. An empty OrganizationID creates a
// global assignment.
type AssignRequest struct {
	UserID         string      `json:"user_id" validate:"required,max=255"`
	Role           models.Role `json:"role" validate:"required,role"`
	OrganizationID string      `json:"organization_id,omitempty" validate:"max=255"`
}

// Service implements role assignment management
type Service struct {
	assignments repositories.RoleAssignmentRepository
	auditLogs   repositories.AuditRepository
	txMgr       repositories.TransactionManager
	gate        *auth.Gate
	logger      *zap.Logger
}

// NewService creates a new assignment service
func NewService(
	assignments repositories.RoleAssignmentRepository,
	auditLogs repositories.AuditRepository,
	txMgr repositories.TransactionManager,
	gate *auth.Gate,
	logger *zap.Logger,
) *Service {
	return &Service{
		assignments: assignments,
		auditLogs:   auditLogs,
		txMgr:       txMgr,
		gate:        gate,
		logger:      logger,
	}
}

// Assign creates an assignment. Scoped assignments need user:create in the target
// organization; global ones need a global admin.
func (s *Service) Assign(ctx context.Context, actorID string, req AssignRequest) (*models.RoleAssignment, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	if req.UserID == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "user_id is required", nil)
	}
	role, err := models.ParseRole(string(req.Role))
	if err != nil {
		return nil, services.FromAuthorizationError(err)
	}

	if err := s.authorizeScope(ctx, actorID, models.PermUserCreate, req.OrganizationID); err != nil {
		return nil, err
	}

	a := models.NewRoleAssignment(req.UserID, role, req.OrganizationID, actorID)
	err = services.WithTransaction(ctx, s.txMgr, func(txCtx context.Context) error {
		if err := s.assignments.Create(txCtx, a); err != nil {
			return services.WrapInternal("failed to create role assignment", err)
		}
		if err := s.auditLogs.Insert(txCtx, audit.RoleAssigned(actorID, a, audit.RequestInfoFromContext(ctx))); err != nil {
			return services.WrapInternal("failed to write audit log", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role assigned",
		zap.String("assignment_id", a.ID.String()),
		zap.String("actor_id", actorID),
		zap.String("user_id", a.UserID),
		zap.String("role", a.Role.String()),
		zap.String("org_id", a.Scope()))
	return a, nil
}

// Revoke deletes an assignment. When orgID is non-empty the actor is authorized
// in orgID before the lookup and the assignment must be scoped to it, otherwise
// it is reported as not found. Without orgID only a global admin can tell a
// missing assignment from a forbidden one.
func (s *Service) Revoke(ctx context.Context, actorID string, assignmentID uuid.UUID, orgID string) error {
	if orgID != "" {
		if err := s.authorizeScope(ctx, actorID, models.PermUserDelete, orgID); err != nil {
			return err
		}
	}

	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		err = services.FromAuthorizationError(err)
		if orgID == "" && services.IsNotFoundError(err) {
			if authErr := s.authorizeScope(ctx, actorID, models.PermUserDelete, ""); authErr != nil {
				return authErr
			}
		}
		return err
	}
	if orgID != "" && !a.ScopedTo(orgID) {
		return services.ErrRoleAssignmentNotFound
	}

	if orgID == "" {
		if err := s.authorizeScope(ctx, actorID, models.PermUserDelete, a.Scope()); err != nil {
			return err
		}
	}

	err = services.WithTransaction(ctx, s.txMgr, func(txCtx context.Context) error {
		if err := s.assignments.Delete(txCtx, a.ID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrRoleAssignmentNotFound
			}
			return services.WrapInternal("failed to delete role assignment", err)
		}
		if err := s.auditLogs.Insert(txCtx, audit.RoleRevoked(actorID, a, audit.RequestInfoFromContext(ctx))); err != nil {
			return services.WrapInternal("failed to write audit log", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("role revoked",
		zap.String("assignment_id", a.ID.String()),
		zap.String("actor_id", actorID),
		zap.String("user_id", a.UserID),
		zap.String("org_id", a.Scope()))
	return nil
}

// ListForUser returns every assignment of userID. Callers may list their own
// assignments; anyone else must be a global admin.
func (s *Service) ListForUser(ctx context.Context, actorID, userID string) ([]*models.RoleAssignment, error) {
	if actorID != userID {
		if err := s.gate.RequireGlobalAdmin(ctx, actorID); err != nil {
			return nil, services.FromAuthorizationError(err)
		}
	}

	rows, err := s.assignments.QueryAssignments(ctx, userID, models.AnyOrganization())
	if err != nil {
		return nil, services.WrapInternal("failed to list role assignments", err)
	}
	return rows, nil
}

// ListForOrganization returns a page of the assignments scoped to orgID
func (s *Service) ListForOrganization(ctx context.Context, actorID, orgID string, limit, offset int) ([]*models.RoleAssignment, error) {
	if _, err := s.gate.Authorize(ctx, actorID, models.PermUserRead,
		auth.WithExplicitOrganization(orgID), auth.RequireOrganization()); err != nil {
		return nil, services.FromAuthorizationError(err)
	}

	limit, offset = NormalizePage(limit, offset)
	rows, err := s.assignments.ListByOrganization(ctx, orgID, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list role assignments", err)
	}
	return rows, nil
}

func (s *Service) authorizeScope(ctx context.Context, actorID string, permission models.Permission, orgID string) error {
	var err error
	if orgID == "" {
		err = s.gate.RequireGlobalAdmin(ctx, actorID)
	} else {
		_, err = s.gate.Authorize(ctx, actorID, permission,
			auth.WithExplicitOrganization(orgID), auth.RequireOrganization())
	}
	if err != nil {
		s.logger.Warn("role management denied",
			zap.String("actor_id", actorID),
			zap.String("permission", permission.String()),
			zap.String("org_id", orgID),
			zap.Error(err))
		return services.FromAuthorizationError(err)
	}
	return nil
}

// NormalizePage applies DefaultPageSize to a non-positive limit, caps it at
// MaxPageSize and clamps a negative offset to zero
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
