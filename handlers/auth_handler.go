package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/middleware"
	"github.com/upb/workspace-authz/utils"
	"go.uber.org/zap"
)

// SessionRequest carries a bearer token to be stored as the session cookie
type SessionRequest struct {
	Token string `json:"token" validate:"required"`
}

// SessionResponse describes the authenticated caller
type SessionResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// SessionHandler exchanges bearer tokens for the auth_token cookie read by
// middleware.RequireAuth
type SessionHandler struct {
	validator     middleware.TokenValidator
	cookieMaxAge  time.Duration
	secureCookies bool
	logger        *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(validator middleware.TokenValidator, cookieMaxAge time.Duration, secureCookies bool, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		validator:     validator,
		cookieMaxAge:  cookieMaxAge,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// HandleCreateSession handles POST /auth/session
func (h *SessionHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	principal, err := h.validator.ValidateToken(r.Context(), req.Token)
	if err != nil {
		h.logger.Warn("session token rejected",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Invalid or expired token")
		return
	}

	maxAge := h.cookieMaxAge
	if !principal.ExpiresAt.IsZero() {
		if untilExpiry := time.Until(principal.ExpiresAt); untilExpiry < maxAge {
			maxAge = untilExpiry
		}
	}
	// MaxAge 0 would drop the attribute and outlive the token
	if maxAge < time.Second {
		h.logger.Info("session token about to expire",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("user_id", principal.Subject))
		_ = utils.WriteUnauthorized(w, "Invalid or expired token")
		return
	}
	http.SetCookie(w, h.cookie(req.Token, int(maxAge/time.Second)))

	_ = utils.WriteOK(w, toSessionResponse(principal))
}

// HandleLogout handles POST /auth/logout
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie("", -1))
	utils.WriteNoContent(w)
}

// HandleMe handles GET /me
func (h *SessionHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	_ = utils.WriteOK(w, toSessionResponse(principal))
}

func (h *SessionHandler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.AuthTokenCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

func toSessionResponse(p *auth.Principal) SessionResponse {
	resp := SessionResponse{UserID: p.Subject, Email: p.Email}
	if !p.ExpiresAt.IsZero() {
		resp.ExpiresAt = p.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}
