package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoleAssignment grants a role to a user, either globally (OrganizationID == nil)
// or scoped to a single organization.
//
// Uniqueness of (UserID, OrganizationID) is not enforced: a user may hold several
// assignments in the same scope.
type RoleAssignment struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Role           Role      `json:"role" db:"role"`
	OrganizationID *string   `json:"organization_id" db:"organization_id"`
	AssignedBy     string    `json:"assigned_by,omitempty" db:"assigned_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RoleAssignment model
func (RoleAssignment) TableName() string {
	return "role_assignments"
}

// NewRoleAssignment creates a new RoleAssignment. An empty orgID creates a global assignment.
func NewRoleAssignment(userID string, role Role, orgID string, assignedBy string) *RoleAssignment {
	a := &RoleAssignment{
		ID:         uuid.New(),
		UserID:     userID,
		Role:       role,
		AssignedBy: assignedBy,
		CreatedAt:  time.Now().UTC(),
	}
	if orgID != "" {
		a.OrganizationID = &orgID
	}
	return a
}

// IsGlobal reports whether the assignment applies across all organizations
func (a *RoleAssignment) IsGlobal() bool {
	return a.OrganizationID == nil
}

// ScopedTo reports whether the assignment is scoped to exactly orgID
func (a *RoleAssignment) ScopedTo(orgID string) bool {
	return a.OrganizationID != nil && *a.OrganizationID == orgID
}

// Scope returns the organization ID, or "" for a global assignment
func (a *RoleAssignment) Scope() string {
	if a.OrganizationID == nil {
		return ""
	}
	return *a.OrganizationID
}

// OrgFilterKind selects which assignments a store query returns
type OrgFilterKind int

const (
	// OrgFilterAny matches every assignment of the user
	OrgFilterAny OrgFilterKind = iota
	// OrgFilterGlobal matches assignments with no organization
	OrgFilterGlobal
	// OrgFilterExact matches assignments scoped to one organization
	OrgFilterExact
	// OrgFilterExactOrGlobal matches one organization plus global assignments
	OrgFilterExactOrGlobal
)

// OrgFilter is the organization predicate of a role assignment query
type OrgFilter struct {
	Kind           OrgFilterKind
	OrganizationID string
}

// AnyOrganization matches all assignments
func AnyOrganization() OrgFilter {
	return OrgFilter{Kind: OrgFilterAny}
}

// GlobalOnly matches global assignments
func GlobalOnly() OrgFilter {
	return OrgFilter{Kind: OrgFilterGlobal}
}

// InOrganization matches assignments scoped to orgID
func InOrganization(orgID string) OrgFilter {
	return OrgFilter{Kind: OrgFilterExact, OrganizationID: orgID}
}

// InOrganizationOrGlobal matches assignments scoped to orgID and global assignments
func InOrganizationOrGlobal(orgID string) OrgFilter {
	return OrgFilter{Kind: OrgFilterExactOrGlobal, OrganizationID: orgID}
}

// Matches evaluates the filter against an assignment's organization column
func (f OrgFilter) Matches(orgID *string) bool {
	switch f.Kind {
	case OrgFilterAny:
		return true
	case OrgFilterGlobal:
		return orgID == nil
	case OrgFilterExact:
		return orgID != nil && *orgID == f.OrganizationID
	case OrgFilterExactOrGlobal:
		return orgID == nil || *orgID == f.OrganizationID
	default:
		return false
	}
}

func (f OrgFilter) String() string {
	switch f.Kind {
	case OrgFilterAny:
		return "any"
	case OrgFilterGlobal:
		return "global"
	case OrgFilterExact:
		return fmt.Sprintf("org=%s", f.OrganizationID)
	case OrgFilterExactOrGlobal:
		return fmt.Sprintf("org=%s|global", f.OrganizationID)
	default:
		return "unknown"
	}
}
