package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/utils"
	"go.uber.org/zap"
)

// TokenValidator defines the interface for validating bearer tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Principal, error)
}

// DefaultOrganizationHeader carries the tenant chosen by the client
const DefaultOrganizationHeader = "X-Organization-ID"

const maxOrganizationIDLength = 255

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	orgHeader string
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. An empty orgHeader selects
// DefaultOrganizationHeader.
func NewAuthMiddleware(validator TokenValidator, orgHeader string, logger *zap.Logger) *AuthMiddleware {
	if orgHeader == "" {
		orgHeader = DefaultOrganizationHeader
	}
	return &AuthMiddleware{
		validator: validator,
		orgHeader: orgHeader,
		logger:    logger,
	}
}

// AuthTokenCookieName is read when no Authorization header is present
const AuthTokenCookieName = "auth_token"

// RequireAuth rejects requests without a valid token and stores the principal
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractToken(r)
		if token == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		principal, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", principal.Subject))

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(ctx, principal)))
	})
}

// ExtractTenant stores the organization named by the tenant header as the
// request's organization context. A missing header leaves the context empty.
func (m *AuthMiddleware) ExtractTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.Header.Get(m.orgHeader))
		if orgID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if len(orgID) > maxOrganizationIDLength {
			m.logger.Warn("organization header too long",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.Int("length", len(orgID)))
			_ = utils.WriteBadRequest(w, "Invalid organization ID", map[string]interface{}{
				"header": m.orgHeader,
			})
			return
		}

		m.logger.Debug("organization context extracted",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.String("org_id", orgID))

		next.ServeHTTP(w, r.WithContext(auth.WithOrganization(r.Context(), orgID)))
	})
}

// extractToken reads the Bearer token from the Authorization header, falling
// back to the auth_token cookie.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(AuthTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
