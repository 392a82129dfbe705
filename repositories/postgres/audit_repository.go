package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/repositories"
	"go.uber.org/zap"
)

const auditLogColumns = `id, organization_id, actor_id, action, resource_type, resource_id,
		       details, ip_address, user_agent, request_id, timestamp`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, organization_id, actor_id, action, resource_type, resource_id,
			details, ip_address, user_agent, request_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		log.ID,
		log.OrganizationID,
		log.ActorID,
		string(log.Action),
		log.ResourceType,
		log.ResourceID,
		details,
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// GetByID retrieves an audit log by ID
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	query := `SELECT ` + auditLogColumns + ` FROM audit_logs WHERE id = $1`

	log, err := scanAuditLog(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit log %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}
	return log, nil
}

// ListByOrganization retrieves audit logs for an organization with pagination
func (r *AuditRepository) ListByOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditLogColumns + `
		FROM audit_logs
		WHERE organization_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3`

	return r.queryAuditLogs(ctx, query, orgID, limit, offset)
}

// ListByActor retrieves audit logs for an actor with pagination
func (r *AuditRepository) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditLogColumns + `
		FROM audit_logs
		WHERE actor_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3`

	return r.queryAuditLogs(ctx, query, actorID, limit, offset)
}

func (r *AuditRepository) queryAuditLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}
	return logs, nil
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	var (
		log        models.AuditLog
		action     string
		orgID      sql.NullString
		resourceID sql.NullString
		details    []byte
		ip, ua     sql.NullString
		requestID  sql.NullString
	)
	err := row.Scan(&log.ID, &orgID, &log.ActorID, &action, &log.ResourceType, &resourceID,
		&details, &ip, &ua, &requestID, &log.Timestamp)
	if err != nil {
		return nil, err
	}

	log.Action = models.AuditAction(action)
	if orgID.Valid {
		log.OrganizationID = &orgID.String
	}
	if resourceID.Valid {
		log.ResourceID = &resourceID.String
	}
	if len(details) > 0 {
		log.Details = details
	}
	log.IPAddress = ip.String
	log.UserAgent = ua.String
	log.RequestID = requestID.String
	return &log, nil
}
