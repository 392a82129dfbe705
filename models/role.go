package models

import (
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a string does not name one of the built-in roles
var ErrUnknownRole = errors.New("unknown role")

// Role is a named privilege tier. The set is closed and defined at build time.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleWriter Role = "writer"
	RoleViewer Role = "viewer"
	RoleGuest  Role = "guest"
)

var rolePriority = map[Role]int{
	RoleAdmin:  4,
	RoleWriter: 3,
	RoleViewer: 2,
	RoleGuest:  1,
}

// AllRoles returns every role ordered from most to least privileged
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleWriter, RoleViewer, RoleGuest}
}

// ParseRole converts a persisted or user-supplied string into a Role
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return role, nil
}

// IsValid reports whether r is one of the built-in roles
func (r Role) IsValid() bool {
	_, ok := rolePriority[r]
	return ok
}

// Priority ranks roles for effective-role resolution. Unknown roles rank 0.
func (r Role) Priority() int {
	return rolePriority[r]
}

// Outranks reports whether r is strictly more privileged than other
func (r Role) Outranks(other Role) bool {
	return r.Priority() > other.Priority()
}

func (r Role) String() string {
	return string(r)
}
