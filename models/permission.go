package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPermission is returned when a string does not name a known permission
var ErrUnknownPermission = errors.New("unknown permission")

// Permission is an atomic resource:action capability
type Permission string

const (
	PermCommentCreate Permission = "comment:create"
	PermCommentRead   Permission = "comment:read"
	PermCommentUpdate Permission = "comment:update"
	PermCommentDelete Permission = "comment:delete"

	PermTemplateCreate Permission = "template:create"
	PermTemplateRead   Permission = "template:read"
	PermTemplateUpdate Permission = "template:update"
	PermTemplateDelete Permission = "template:delete"

	PermBlockCreate Permission = "block:create"
	PermBlockRead   Permission = "block:read"
	PermBlockUpdate Permission = "block:update"
	PermBlockDelete Permission = "block:delete"

	PermUserCreate Permission = "user:create"
	PermUserRead   Permission = "user:read"
	PermUserUpdate Permission = "user:update"
	PermUserDelete Permission = "user:delete"

	PermOrganizationCreate Permission = "organization:create"
	PermOrganizationRead   Permission = "organization:read"
	PermOrganizationUpdate Permission = "organization:update"
	PermOrganizationDelete Permission = "organization:delete"

	// PermAdminSettings is granted to admin only
	PermAdminSettings Permission = "admin:settings"
)

var allPermissions = []Permission{
	PermCommentCreate, PermCommentRead, PermCommentUpdate, PermCommentDelete,
	PermTemplateCreate, PermTemplateRead, PermTemplateUpdate, PermTemplateDelete,
	PermBlockCreate, PermBlockRead, PermBlockUpdate, PermBlockDelete,
	PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete,
	PermOrganizationCreate, PermOrganizationRead, PermOrganizationUpdate, PermOrganizationDelete,
	PermAdminSettings,
}

var knownPermissions = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(allPermissions))
	for _, p := range allPermissions {
		m[p] = struct{}{}
	}
	return m
}()

// AllPermissions returns a copy of the full permission set in declaration order
func AllPermissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// ParsePermission converts a string such as "template:read" into a Permission
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPermission, s)
	}
	return p, nil
}

// IsValid reports whether p is part of the closed permission set
func (p Permission) IsValid() bool {
	_, ok := knownPermissions[p]
	return ok
}

// Resource returns the part before the colon ("template" for "template:read")
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

// Action returns the part after the colon ("read" for "template:read")
func (p Permission) Action() string {
	_, action, _ := strings.Cut(string(p), ":")
	return action
}

func (p Permission) String() string {
	return string(p)
}
