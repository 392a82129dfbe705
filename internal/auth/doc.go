// Package auth provides authentication and authorization primitives
// for the workspace API.
//
// This package implements:
//   - The role to permission catalog (admin, writer, viewer, guest)
//   - The permission resolver over stored role assignments
//   - The organization-scoped authorization gate and the global admin gate
//   - HS256 bearer token issuing and validation
//
// The resolver fails closed: a store failure yields no assignments,
// which every caller reads as a deny.
package auth
