package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/workspace-authz/models"
)

// ErrNotFound is returned (wrapped) when a row looked up by ID does not exist
var ErrNotFound = errors.New("not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// RoleAssignmentRepository handles role assignment data operations
type RoleAssignmentRepository interface {
	// Create inserts a new assignment. Duplicate (user, organization) pairs are allowed.
	Create(ctx context.Context, assignment *models.RoleAssignment) error

	// GetByID retrieves an assignment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.RoleAssignment, error)

	// Delete removes an assignment
	Delete(ctx context.Context, id uuid.UUID) error

	// QueryAssignments returns a user's assignments matching filter in a single query.
	// A row with an unknown role fails the whole query.
	QueryAssignments(ctx context.Context, userID string, filter models.OrgFilter) ([]*models.RoleAssignment, error)

	// ListByOrganization retrieves assignments scoped to an organization with pagination
	ListByOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.RoleAssignment, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// ListByOrganization retrieves audit logs for an organization, newest first
	ListByOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditLog, error)

	// ListByActor retrieves audit logs written for an actor, newest first
	ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	RoleAssignments RoleAssignmentRepository
	AuditLogs       AuditRepository
}
