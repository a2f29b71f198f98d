// Package api provides the HTTP handlers of the session gate.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/vetcare-gate/internal/domain"
	"github.com/ashureev/vetcare-gate/internal/guard"
	"github.com/ashureev/vetcare-gate/internal/identity"
	"github.com/ashureev/vetcare-gate/internal/session"
)

// Handler provides common handler utilities.
type Handler struct {
	registry *session.Registry
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(registry *session.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, logger: logger}
}

// Store returns the session store of role for the requesting device, or nil
// when the request carries no device.
func (h *Handler) Store(r *http.Request, role domain.Role) *session.Store {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		return nil
	}
	return h.registry.Lookup(r.Context(), deviceID).Get(role)
}

// Lookup adapts Store to the guard middleware.
func (h *Handler) Lookup(role domain.Role) guard.Lookup {
	return func(r *http.Request) guard.Authenticated {
		if s := h.Store(r, role); s != nil {
			return s
		}
		return nil
	}
}

// APIBase returns the JSON API prefix of role.
func APIBase(role domain.Role) string {
	if role == domain.RoleAdmin {
		return "/api/admin/auth"
	}
	return "/api/auth"
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
