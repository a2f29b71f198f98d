package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/vetcare-gate/internal/probe"
	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks  []probe.Check
	timeout time.Duration
}

// NewHealthHandler creates a health handler over the same checks the gRPC
// probe uses.
func NewHealthHandler(checks []probe.Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]any{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	for _, c := range h.checks {
		if err := c.Pinger.Ping(ctx); err != nil {
			slog.Error("Health check failed", "check", c.Name, "error", err)
			checks[c.Name] = "unreachable"
			status["status"] = "degraded"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
