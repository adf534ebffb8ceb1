package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/aran-respon/internal/store"
	"github.com/ashureev/aran-respon/internal/widget"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	backend store.Store
	widgets *widget.Manager
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(backend store.Store, widgets *widget.Manager) *HealthHandler {
	return &HealthHandler{backend: backend, widgets: widgets}
}

// Health returns the health status of the API and its persistence backend.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	if h.widgets != nil {
		status["widgets"] = h.widgets.Len()
	}
	statusCode := http.StatusOK

	if err := h.backend.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
