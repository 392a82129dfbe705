package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/workspace-authz/app"
	"github.com/upb/workspace-authz/handlers"
	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/middleware"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestMetadata)
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cfg.Auth.OrganizationHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var auditStats handlers.AuditStatsProvider
	if deps.AuditService != nil {
		auditStats = deps.AuditService
	}
	health := handlers.NewHealthHandler(deps.DB, auditStats, deps.Logger)
	session := handlers.NewSessionHandler(deps.Tokens, cfg.Auth.TokenTTL, cfg.IsProduction(), deps.Logger)
	authz := handlers.NewAuthorizationHandler(deps.Resolver, deps.Logger)
	assignments := handlers.NewRoleAssignmentHandler(deps.AssignmentService, deps.Logger)
	auditLogs := handlers.NewAuditLogHandler(deps.AuditLogReader, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if cfg.Observability.MetricsEnabled {
		r.Handle(cfg.Observability.MetricsPath, deps.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/session", session.HandleCreateSession)
		r.Post("/logout", session.HandleLogout)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Use(deps.AuthMiddleware.ExtractTenant)

		r.Route("/me", func(r chi.Router) {
			r.Get("/", session.HandleMe)
			r.Get("/roles", authz.HandleMyRoles)
			r.Get("/permissions", authz.HandleMyPermissions)
			r.Get("/authorize", authz.HandleAuthorize)
		})

		r.Route("/organizations/{orgID}", func(r chi.Router) {
			r.Route("/role-assignments", func(r chi.Router) {
				r.With(deps.Authorizer.RequirePermission(models.PermUserRead, auth.RequireOrganization())).
					Get("/", assignments.HandleListForOrganization)
				r.With(deps.Authorizer.RequirePermission(models.PermUserCreate, auth.RequireOrganization())).
					Post("/", assignments.HandleCreateForOrganization)
				r.With(deps.Authorizer.RequirePermission(models.PermUserDelete, auth.RequireOrganization())).
					Delete("/{assignmentID}", assignments.HandleDeleteForOrganization)
			})
			r.With(deps.Authorizer.RequirePermission(models.PermUserRead, auth.RequireOrganization())).
				Get("/users/{userID}/role", authz.HandleEffectiveRole)
			r.Route("/audit-logs", func(r chi.Router) {
				r.Use(deps.Authorizer.RequirePermission(models.PermUserRead, auth.RequireOrganization()))
				r.Get("/", auditLogs.HandleListForOrganization)
				r.Get("/{auditLogID}", auditLogs.HandleGetForOrganization)
			})
		})

		// Global administration
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.Authorizer.RequireGlobalAdmin)
			r.Post("/role-assignments", assignments.HandleCreate)
			r.Delete("/role-assignments/{assignmentID}", assignments.HandleDelete)
			r.Get("/users/{userID}/role-assignments", assignments.HandleListForUser)
			r.Get("/catalog", authz.HandleCatalog)
			r.Get("/audit-logs", auditLogs.HandleListForActor)
			r.Get("/audit-logs/{auditLogID}", auditLogs.HandleGet)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
