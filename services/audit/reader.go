package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/repositories"
	"github.com/upb/workspace-authz/services"
	"go.uber.org/zap"
)

// Reader serves stored audit entries. Callers are expected to have passed the
// route gate; Reader itself does not authorize.
type Reader struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewReader creates a new Reader
func NewReader(repo repositories.AuditRepository, logger *zap.Logger) *Reader {
	return &Reader{repo: repo, logger: logger}
}

// ListForOrganization returns a page of the entries scoped to orgID, newest first
func (r *Reader) ListForOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditLog, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, services.ErrOrganizationRequired
	}
	logs, err := r.repo.ListByOrganization(ctx, orgID, limit, offset)
	if err != nil {
		r.logger.Error("failed to list audit logs", zap.String("org_id", orgID), zap.Error(err))
		return nil, services.WrapInternal("failed to list audit logs", err)
	}
	return logs, nil
}

// ListForActor returns a page of the entries written for actorID, newest first
func (r *Reader) ListForActor(ctx context.Context, actorID string, limit, offset int) ([]*models.AuditLog, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "actor_id is required", nil)
	}
	logs, err := r.repo.ListByActor(ctx, actorID, limit, offset)
	if err != nil {
		r.logger.Error("failed to list audit logs", zap.String("actor_id", actorID), zap.Error(err))
		return nil, services.WrapInternal("failed to list audit logs", err)
	}
	return logs, nil
}

// Get returns one entry. When orgID is non-empty the entry must be scoped to
// it, otherwise it is reported as not found.
func (r *Reader) Get(ctx context.Context, id uuid.UUID, orgID string) (*models.AuditLog, error) {
	log, err := r.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrAuditLogNotFound
		}
		return nil, services.WrapInternal("failed to get audit log", err)
	}
	if orgID != "" && (log.OrganizationID == nil || *log.OrganizationID != orgID) {
		return nil, services.ErrAuditLogNotFound
	}
	return log, nil
}
