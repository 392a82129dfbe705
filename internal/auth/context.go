package auth

import "context"

type contextKey string

const (
	organizationKey contextKey = "organization_id"
	principalKey    contextKey = "principal"
)

// WithOrganization stores the request's organization context.
func WithOrganization(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, organizationKey, orgID)
}

// OrganizationFromContext returns the request's organization, or "".
func OrganizationFromContext(ctx context.Context) string {
	if orgID, ok := ctx.Value(organizationKey).(string); ok {
		return orgID
	}
	return ""
}

// WithPrincipal stores the authenticated principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey).(*Principal); ok {
		return p
	}
	return nil
}
