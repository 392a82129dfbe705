package services

import (
	"errors"
	"fmt"

	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/repositories"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrRoleAssignmentNotFound = NewDomainError(ErrorTypeNotFound, "role assignment not found", nil)
	ErrAuditLogNotFound       = NewDomainError(ErrorTypeNotFound, "audit log not found", nil)

	ErrInvalidInput      = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidRole       = NewDomainError(ErrorTypeValidation, "invalid role", nil)
	ErrInvalidPermission = NewDomainError(ErrorTypeValidation, "invalid permission", nil)

	ErrUnauthorized         = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken         = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired         = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)
	ErrOrganizationRequired = NewDomainError(ErrorTypeUnauthorized, "organization context required", nil)

	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)
	ErrGlobalAdminRequired     = NewDomainError(ErrorTypeForbidden, "global administrator required", nil)

	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)
)

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetErrorMessage returns the client-facing message of a domain error without
// its cause, or err.Error() for any other error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// FromAuthorizationError converts errors produced by the auth package and the
// repositories into domain errors. Anything unrecognised becomes internal.
// A nil error stays nil.
func FromAuthorizationError(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	var denied *auth.PermissionDeniedError
	switch {
	case errors.As(err, &denied):
		de := NewDomainError(ErrorTypeForbidden, "insufficient permissions", err).
			WithDetail("permission", denied.Permission.String())
		if denied.OrganizationID != "" {
			de.WithDetail("organization_id", denied.OrganizationID)
		}
		return de
	case errors.Is(err, auth.ErrGlobalAdminRequired):
		return NewDomainError(ErrorTypeForbidden, ErrGlobalAdminRequired.Message, err)
	case errors.Is(err, auth.ErrOrganizationRequired):
		return NewDomainError(ErrorTypeUnauthorized, ErrOrganizationRequired.Message, err)
	case errors.Is(err, auth.ErrTokenExpired):
		return NewDomainError(ErrorTypeUnauthorized, ErrTokenExpired.Message, err)
	case errors.Is(err, auth.ErrInvalidToken):
		return NewDomainError(ErrorTypeUnauthorized, ErrInvalidToken.Message, err)
	case errors.Is(err, models.ErrUnknownRole):
		return NewDomainError(ErrorTypeValidation, ErrInvalidRole.Message, err)
	case errors.Is(err, models.ErrUnknownPermission):
		return NewDomainError(ErrorTypeValidation, ErrInvalidPermission.Message, err)
	case errors.Is(err, repositories.ErrNotFound):
		return NewDomainError(ErrorTypeNotFound, ErrRoleAssignmentNotFound.Message, err)
	default:
		return WrapInternal("authorization failed", err)
	}
}
