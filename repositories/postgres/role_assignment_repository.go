package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/repositories"
	"go.uber.org/zap"
)

var roleAssignmentColumns = []string{"id", "user_id", "role", "organization_id", "assigned_by", "created_at"}

// RoleAssignmentRepository implements repositories.RoleAssignmentRepository
type RoleAssignmentRepository struct {
	db           *DB
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewRoleAssignmentRepository creates a new role assignment repository. A positive
// queryTimeout bounds every statement.
func NewRoleAssignmentRepository(db *DB, queryTimeout time.Duration, logger *zap.Logger) *RoleAssignmentRepository {
	return &RoleAssignmentRepository{db: db, queryTimeout: queryTimeout, logger: logger}
}

func (r *RoleAssignmentRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

// Create inserts a new role assignment
func (r *RoleAssignmentRepository) Create(ctx context.Context, a *models.RoleAssignment) error {
	if !a.Role.IsValid() {
		return fmt.Errorf("create role assignment: %w: %q", models.ErrUnknownRole, string(a.Role))
	}

	query, args, err := squirrel.Insert(a.TableName()).
		Columns(roleAssignmentColumns...).
		Values(a.ID, a.UserID, string(a.Role), a.OrganizationID, a.AssignedBy, a.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert role assignment: %w", err)
	}

	r.logger.Debug("role assignment created",
		zap.String("id", a.ID.String()),
		zap.String("user_id", a.UserID),
		zap.String("role", a.Role.String()),
		zap.String("organization_id", a.Scope()))
	return nil
}

// GetByID retrieves a role assignment by ID
func (r *RoleAssignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RoleAssignment, error) {
	query, args, err := squirrel.Select(roleAssignmentColumns...).
		From("role_assignments").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	a, err := scanRoleAssignment(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role assignment %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get role assignment: %w", err)
	}
	return a, nil
}

// Delete removes a role assignment
func (r *RoleAssignmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := squirrel.Delete("role_assignments").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete role assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("role assignment %s: %w", id, repositories.ErrNotFound)
	}
	return nil
}

// QueryAssignments returns the user's assignments matching filter
func (r *RoleAssignmentRepository) QueryAssignments(ctx context.Context, userID string, filter models.OrgFilter) ([]*models.RoleAssignment, error) {
	qb := squirrel.Select(roleAssignmentColumns...).
		From("role_assignments").
		Where(squirrel.Eq{"user_id": userID})

	switch filter.Kind {
	case models.OrgFilterAny:
	case models.OrgFilterGlobal:
		qb = qb.Where(squirrel.Eq{"organization_id": nil})
	case models.OrgFilterExact:
		qb = qb.Where(squirrel.Eq{"organization_id": filter.OrganizationID})
	case models.OrgFilterExactOrGlobal:
		qb = qb.Where(squirrel.Or{
			squirrel.Eq{"organization_id": filter.OrganizationID},
			squirrel.Eq{"organization_id": nil},
		})
	default:
		return nil, fmt.Errorf("unsupported organization filter %d", filter.Kind)
	}

	query, args, err := qb.OrderBy("created_at", "id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	return r.queryRoleAssignments(ctx, query, args...)
}

// ListByOrganization retrieves assignments scoped to orgID with pagination
func (r *RoleAssignmentRepository) ListByOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.RoleAssignment, error) {
	query, args, err := squirrel.Select(roleAssignmentColumns...).
		From("role_assignments").
		Where(squirrel.Eq{"organization_id": orgID}).
		OrderBy("created_at", "id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	return r.queryRoleAssignments(ctx, query, args...)
}

func (r *RoleAssignmentRepository) queryRoleAssignments(ctx context.Context, query string, args ...interface{}) ([]*models.RoleAssignment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query role assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]*models.RoleAssignment, 0)
	for rows.Next() {
		a, err := scanRoleAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role assignments: %w", err)
	}
	return assignments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRoleAssignment decodes one row; an unknown role string is an error.
func scanRoleAssignment(row rowScanner) (*models.RoleAssignment, error) {
	var (
		a     models.RoleAssignment
		role  string
		orgID sql.NullString
	)
	if err := row.Scan(&a.ID, &a.UserID, &role, &orgID, &a.AssignedBy, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan role assignment: %w", err)
	}

	parsed, err := models.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("decode role assignment %s: %w", a.ID, err)
	}
	a.Role = parsed
	if orgID.Valid {
		a.OrganizationID = &orgID.String
	}
	return &a, nil
}
