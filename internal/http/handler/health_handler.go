package handler

import (
	"context"
	"net/http"

	"github.com/headcorn/dashboard-api/internal/database"
	"github.com/headcorn/dashboard-api/internal/datawarehouse"
	"github.com/headcorn/dashboard-api/internal/domain"
	"go.uber.org/zap"
)

// DatabaseChecker reports the health of the accounts database
type DatabaseChecker interface {
	Ping() error
	Stats() *database.Stats
}

// WarehouseChecker reports the health of the analytics connection
type WarehouseChecker interface {
	HealthCheck(ctx context.Context) *datawarehouse.HealthStatus
}

type HealthHandler struct {
	db        DatabaseChecker
	warehouse WarehouseChecker
	appName   string
	version   string
	docsPath  string
	logger    *zap.Logger
}

func NewHealthHandler(db DatabaseChecker, warehouse WarehouseChecker, appName, version, docsPath string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		warehouse: warehouse,
		appName:   appName,
		version:   version,
		docsPath:  docsPath,
		logger:    logger,
	}
}

// Root godoc
// @Summary Service information
// @Tags Health
// @Produce json
// @Success 200 {object} domain.ServiceInfo
// @Router / [get]
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, domain.ServiceInfo{
		Message: h.appName,
		Version: h.version,
		Docs:    h.docsPath,
	})
}

// Liveness answers a plain OK
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Health godoc
// @Summary Health check
// @Description Reports whether the service can reach its database
// @Tags Health
// @Produce json
// @Success 200 {object} domain.HealthResponse
// @Router /api/health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := domain.HealthResponse{
		Status:   "healthy",
		Database: "connected",
		Service:  h.appName,
	}
	if err := h.db.Ping(); err != nil {
		h.logger.Error("Database health check failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
	}
	respondJSON(w, http.StatusOK, resp)
}

// DatabaseStats reports connection pool statistics
func (h *HealthHandler) DatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := h.db.Stats()
	status := http.StatusOK
	if stats.Status != "healthy" {
		h.logger.Error("Database health check failed", zap.String("error", stats.Error))
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]interface{}{
		"status":  stats.Status,
		"service": "database",
		"stats":   stats,
	})
}

// Ready checks every dependency
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]interface{})
	allHealthy := true

	if err := h.db.Ping(); err != nil {
		checks["database"] = map[string]string{"status": "unhealthy", "error": err.Error()}
		allHealthy = false
	} else {
		checks["database"] = map[string]string{"status": "healthy"}
	}

	if h.warehouse != nil {
		wh := h.warehouse.HealthCheck(r.Context())
		checks["warehouse"] = wh
		if wh.Status == "unhealthy" {
			allHealthy = false
		}
	}

	status, label := http.StatusOK, "healthy"
	if !allHealthy {
		status, label = http.StatusServiceUnavailable, "unhealthy"
	}
	respondJSON(w, status, map[string]interface{}{
		"status": label,
		"checks": checks,
	})
}
