package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionRoleAssigned     AuditAction = "role_assigned"
	AuditActionRoleRevoked      AuditAction = "role_revoked"
	AuditActionPermissionDenied AuditAction = "permission_denied"
)

// AuditLog represents an audit trail entry for authorization events
type AuditLog struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrganizationID *string         `json:"organization_id,omitempty" db:"organization_id"`
	ActorID        string          `json:"actor_id" db:"actor_id"`
	Action         AuditAction     `json:"action" db:"action"`
	ResourceType   string          `json:"resource_type" db:"resource_type"` // role_assignment, permission
	ResourceID     *string         `json:"resource_id,omitempty" db:"resource_id"`
	Details        json.RawMessage `json:"details" db:"details"`
	IPAddress      string          `json:"ip_address" db:"ip_address"`
	UserAgent      string          `json:"user_agent" db:"user_agent"`
	RequestID      string          `json:"request_id" db:"request_id"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(actorID string, action AuditAction, resourceType string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		Timestamp:    time.Now().UTC(),
	}
}

// WithOrganization scopes the entry to an organization; "" leaves it global
func (a *AuditLog) WithOrganization(orgID string) *AuditLog {
	if orgID != "" {
		a.OrganizationID = &orgID
	}
	return a
}

// WithResource sets the resource ID
func (a *AuditLog) WithResource(resourceID string) *AuditLog {
	a.ResourceID = &resourceID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
