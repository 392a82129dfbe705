package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/services/audit"
)

// Context key type to avoid collisions
type contextKey string

// RequestIDKey is the context key for a request ID set outside chi's RequestID middleware
const RequestIDKey contextKey = "request_id"

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetPrincipalFromContext returns the authenticated caller, or nil
func GetPrincipalFromContext(ctx context.Context) *auth.Principal {
	return auth.PrincipalFromContext(ctx)
}

// GetUserIDFromContext returns the authenticated caller's user ID, or ""
func GetUserIDFromContext(ctx context.Context) string {
	if p := auth.PrincipalFromContext(ctx); p != nil {
		return p.Subject
	}
	return ""
}

// GetOrgIDFromContext returns the organization chosen by the tenant header, or ""
func GetOrgIDFromContext(ctx context.Context) string {
	return auth.OrganizationFromContext(ctx)
}

// RequestMetadata copies request ID, client address and user agent into the
// context for audit rows. It must run after chi's RequestID and RealIP.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestInfo(r.Context(), audit.RequestInfo{
			RequestID: GetRequestIDFromContext(r.Context()),
			IPAddress: r.RemoteAddr,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
