package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ashureev/vetcare-gate/internal/domain"
	"github.com/ashureev/vetcare-gate/internal/guard"
	"github.com/ashureev/vetcare-gate/internal/identity"
	"github.com/ashureev/vetcare-gate/internal/session"
	"github.com/go-chi/chi/v5"
)

const (
	maxLoginBody = 4 << 10

	invalidCredentialsMessage = "Invalid email or password."
)

// AuthHandler serves the JSON session API of one role.
type AuthHandler struct {
	*Handler
	guard *guard.Guard
}

// NewAuthHandler creates the session API for the role g guards.
func NewAuthHandler(base *Handler, g *guard.Guard) *AuthHandler {
	return &AuthHandler{Handler: base, guard: g}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	From     string `json:"from"`
}

type loginResponse struct {
	User     domain.Identity `json:"user"`
	Redirect string          `json:"redirect"`
}

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	User          *domain.Identity `json:"user"`
}

// RegisterRoutes registers the role's API under APIBase. loginLimit, when
// non-nil, wraps the login endpoint only.
func (h *AuthHandler) RegisterRoutes(r chi.Router, loginLimit func(http.Handler) http.Handler) {
	r.Route(APIBase(h.guard.Role().Role), func(r chi.Router) {
		login := r.With()
		if loginLimit != nil {
			login = r.With(loginLimit)
		}
		login.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/session", h.Session)
		r.Post("/refresh", h.Refresh)
	})
}

// Login checks the posted credentials. A malformed body counts as empty
// credentials and fails like any other mismatch.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxLoginBody)).Decode(&req); err != nil {
		h.logger.Debug("Malformed login body", "device_id", deviceID, "error", err)
		req = loginRequest{}
	}

	role := h.guard.Role()
	if !h.registry.Login(r.Context(), deviceID, role.Role, req.Email, req.Password) {
		Error(w, http.StatusUnauthorized, invalidCredentialsMessage)
		return
	}

	JSON(w, http.StatusOK, loginResponse{
		User:     role.Identity,
		Redirect: h.guard.Destination(req.From),
	})
}

// Logout clears the role's session. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if deviceID := identity.DeviceIDFromContext(r.Context()); deviceID != "" {
		h.registry.Logout(r.Context(), deviceID, h.guard.Role().Role)
	}
	JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Session reports the role's current state.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, sessionPayload(h.Store(r, h.guard.Role().Role)))
}

// Refresh re-reads the persisted slots and reports the role's state.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		JSON(w, http.StatusOK, sessionPayload(nil))
		return
	}
	s := h.registry.Refresh(r.Context(), deviceID)
	JSON(w, http.StatusOK, sessionPayload(s.Get(h.guard.Role().Role)))
}

func sessionPayload(s *session.Store) sessionResponse {
	if s == nil {
		return sessionResponse{}
	}
	user, ok := s.CurrentUser()
	if !ok {
		return sessionResponse{}
	}
	return sessionResponse{Authenticated: true, User: &user}
}
