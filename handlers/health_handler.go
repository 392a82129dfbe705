package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/workspace-authz/services/audit"
	"github.com/upb/workspace-authz/utils"
	"go.uber.org/zap"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Audit     *audit.Stats      `json:"audit,omitempty"`
}

// DatabaseChecker verifies the assignment store is reachable
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// AuditStatsProvider reports the state of the audit writer
type AuditStatsProvider interface {
	GetStats() audit.Stats
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db     DatabaseChecker
	audit  AuditStatsProvider
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. Either dependency may be nil.
func NewHealthHandler(db DatabaseChecker, auditStats AuditStatsProvider, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		audit:  auditStats,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz. It reports liveness only.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	checks["database"] = statusHealthy
	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = statusUnhealthy
			allHealthy = false
		}
	}

	var stats *audit.Stats
	if h.audit != nil {
		s := h.audit.GetStats()
		stats = &s
		// A stopped writer drops every denial record, so the instance is not ready
		if s.Started {
			checks["audit"] = statusHealthy
		} else {
			checks["audit"] = statusUnhealthy
			allHealthy = false
		}
	}

	status := statusHealthy
	httpStatus := http.StatusOK
	if !allHealthy {
		status = statusUnhealthy
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Audit:     stats,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
