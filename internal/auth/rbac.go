package auth

import (
	"sort"

	"github.com/upb/workspace-authz/models"
)

// PermissionSet is an unordered set of permissions.
type PermissionSet map[models.Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...models.Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports membership of p.
func (s PermissionSet) Has(p models.Permission) bool {
	_, ok := s[p]
	return ok
}

// Add merges other into s.
func (s PermissionSet) Add(other PermissionSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// SubsetOf reports whether every permission of s is in other.
func (s PermissionSet) SubsetOf(other PermissionSet) bool {
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Sorted returns the permissions in lexical order.
func (s PermissionSet) Sorted() []models.Permission {
	out := make([]models.Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Catalog maps each role to the permissions it grants. It is immutable once built
// and safe for concurrent reads.
type Catalog struct {
	grants map[models.Role]PermissionSet
}

// NewCatalog copies grants into a new catalog.
func NewCatalog(grants map[models.Role][]models.Permission) *Catalog {
	c := &Catalog{grants: make(map[models.Role]PermissionSet, len(grants))}
	for role, perms := range grants {
		c.grants[role] = NewPermissionSet(perms...)
	}
	return c
}

// DefaultCatalog returns the built-in role table:
//
//	admin  - every permission, including admin:settings
//	writer - comment, template and block CRUD
//	viewer - comment CRUD, template:read, block:read
//	guest  - comment:read, template:read, block:read
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

var defaultCatalog = NewCatalog(map[models.Role][]models.Permission{
	models.RoleAdmin: models.AllPermissions(),
	models.RoleWriter: {
		models.PermCommentCreate, models.PermCommentRead, models.PermCommentUpdate, models.PermCommentDelete,
		models.PermTemplateCreate, models.PermTemplateRead, models.PermTemplateUpdate, models.PermTemplateDelete,
		models.PermBlockCreate, models.PermBlockRead, models.PermBlockUpdate, models.PermBlockDelete,
	},
	models.RoleViewer: {
		models.PermCommentCreate, models.PermCommentRead, models.PermCommentUpdate, models.PermCommentDelete,
		models.PermTemplateRead,
		models.PermBlockRead,
	},
	models.RoleGuest: {
		models.PermCommentRead,
		models.PermTemplateRead,
		models.PermBlockRead,
	},
})

// PermissionsOf returns a copy of the permissions granted by role. A role with no
// entry yields an empty set.
func (c *Catalog) PermissionsOf(role models.Role) PermissionSet {
	out := make(PermissionSet, len(c.grants[role]))
	out.Add(c.grants[role])
	return out
}

// RoleHasPermission reports whether role grants permission.
func (c *Catalog) RoleHasPermission(role models.Role, permission models.Permission) bool {
	return c.grants[role].Has(permission)
}

// Roles lists the roles that have an entry, most privileged first.
func (c *Catalog) Roles() []models.Role {
	out := make([]models.Role, 0, len(c.grants))
	for role := range c.grants {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i] < out[j]
	})
	return out
}

// PermissionsOf looks up role in the default catalog.
func PermissionsOf(role models.Role) PermissionSet {
	return defaultCatalog.PermissionsOf(role)
}

// RoleHasPermission looks up role in the default catalog.
func RoleHasPermission(role models.Role, permission models.Permission) bool {
	return defaultCatalog.RoleHasPermission(role, permission)
}
