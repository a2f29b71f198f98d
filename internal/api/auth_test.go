package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/vetcare-gate/internal/domain"
	"github.com/ashureev/vetcare-gate/internal/guard"
	"github.com/ashureev/vetcare-gate/internal/identity"
	"github.com/ashureev/vetcare-gate/internal/session"
	"github.com/ashureev/vetcare-gate/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDeviceHeader = "X-Test-Device"

type fixture struct {
	backend  *store.MemoryStore
	registry *session.Registry
	base     *Handler
	router   chi.Router
}

// newFixture wires both roles' JSON APIs. Requests pick their device with
// testDeviceHeader instead of the cookie.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := store.NewMemory()
	registry := session.NewRegistry(func(deviceID string) session.Storage {
		return store.ForDevice(backend, deviceID)
	}, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id := req.Header.Get(testDeviceHeader); id != "" {
				req = req.WithContext(identity.WithDeviceID(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})

	f := &fixture{backend: backend, registry: registry, base: NewHandler(registry, nil), router: r}
	for _, spec := range domain.Roles() {
		NewAuthHandler(f.base, guard.New(spec)).RegisterRoutes(r, nil)
	}
	return f
}

func (f *fixture) do(method, path, device, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if device != "" {
		req.Header.Set(testDeviceHeader, device)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestAuthAPI_LoginPersistsSlot(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/auth/login", "dev-a", `{"email":" Demo@VetCare.demo ","password":"demo123"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[loginResponse](t, w)
	assert.Equal(t, domain.UserRole.Identity, resp.User)
	assert.Equal(t, "/", resp.Redirect)

	raw, ok, err := f.backend.GetSlot(context.Background(), "dev-a", domain.UserRole.SlotKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"demo-1","email":"demo@vetcare.demo","name":"Demo User"}`, raw)
}

func TestAuthAPI_LoginFailures(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"wrong password", "/api/auth/login", `{"email":"demo@vetcare.demo","password":"DEMO123"}`},
		{"wrong email", "/api/auth/login", `{"email":"nobody@vetcare.demo","password":"demo123"}`},
		{"other role's pair", "/api/admin/auth/login", `{"email":"demo@vetcare.demo","password":"demo123"}`},
		{"malformed body", "/api/auth/login", `{"email":`},
		{"empty body", "/api/auth/login", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(http.MethodPost, tt.path, "dev-a", tt.body)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, invalidCredentialsMessage, decode[map[string]string](t, w)["error"])

			for _, spec := range domain.Roles() {
				_, ok, err := f.backend.GetSlot(context.Background(), "dev-a", spec.SlotKey)
				require.NoError(t, err)
				assert.False(t, ok, "failed login must not write %s", spec.SlotKey)
			}
		})
	}
}

func TestAuthAPI_LoginRedirectHonorsSafeFrom(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"/appointments?pet=7", "/appointments?pet=7"},
		{"https://evil.example/", "/"},
		{"//evil.example", "/"},
		{"/login", "/"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			f := newFixture(t)
			body, err := json.Marshal(loginRequest{Email: "demo@vetcare.demo", Password: "demo123", From: tt.from})
			require.NoError(t, err)

			w := f.do(http.MethodPost, "/api/auth/login", "dev-a", string(body))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, decode[loginResponse](t, w).Redirect)
		})
	}
}

func TestAuthAPI_SessionAndLogout(t *testing.T) {
	f := newFixture(t)

	got := decode[sessionResponse](t, f.do(http.MethodGet, "/api/auth/session", "dev-a", ""))
	assert.False(t, got.Authenticated)
	assert.Nil(t, got.User)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/auth/login", "dev-a", `{"email":"demo@vetcare.demo","password":"demo123"}`).Code)

	got = decode[sessionResponse](t, f.do(http.MethodGet, "/api/auth/session", "dev-a", ""))
	assert.True(t, got.Authenticated)
	require.NotNil(t, got.User)
	assert.Equal(t, "Demo User", got.User.DisplayName)

	// Roles are independent.
	admin := decode[sessionResponse](t, f.do(http.MethodGet, "/api/admin/auth/session", "dev-a", ""))
	assert.False(t, admin.Authenticated)

	// Devices are independent.
	other := decode[sessionResponse](t, f.do(http.MethodGet, "/api/auth/session", "dev-b", ""))
	assert.False(t, other.Authenticated)

	for range 2 {
		w := f.do(http.MethodPost, "/api/auth/logout", "dev-a", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "logged_out", decode[map[string]string](t, w)["status"])
	}

	got = decode[sessionResponse](t, f.do(http.MethodGet, "/api/auth/session", "dev-a", ""))
	assert.False(t, got.Authenticated)
	_, ok, err := f.backend.GetSlot(context.Background(), "dev-a", domain.UserRole.SlotKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthAPI_RefreshPicksUpSlotChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got := decode[sessionResponse](t, f.do(http.MethodGet, "/api/admin/auth/session", "dev-a", ""))
	require.False(t, got.Authenticated)

	raw, err := domain.AdminRole.Identity.Encode()
	require.NoError(t, err)
	require.NoError(t, f.backend.SetSlot(ctx, "dev-a", domain.AdminRole.SlotKey, raw))

	// Cached state is unchanged until an explicit refresh.
	got = decode[sessionResponse](t, f.do(http.MethodGet, "/api/admin/auth/session", "dev-a", ""))
	assert.False(t, got.Authenticated)

	got = decode[sessionResponse](t, f.do(http.MethodPost, "/api/admin/auth/refresh", "dev-a", ""))
	assert.True(t, got.Authenticated)

	require.NoError(t, f.backend.SetSlot(ctx, "dev-a", domain.AdminRole.SlotKey, `{"id":"admin-1"`))
	got = decode[sessionResponse](t, f.do(http.MethodPost, "/api/admin/auth/refresh", "dev-a", ""))
	assert.False(t, got.Authenticated, "corrupt slot reads as signed out")
}

func TestAuthAPI_NoDevice(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/auth/login", "", `{"email":"demo@vetcare.demo","password":"demo123"}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/auth/logout", "", "").Code)

	got := decode[sessionResponse](t, f.do(http.MethodGet, "/api/auth/session", "", ""))
	assert.False(t, got.Authenticated)
	got = decode[sessionResponse](t, f.do(http.MethodPost, "/api/auth/refresh", "", ""))
	assert.False(t, got.Authenticated)
}

func TestAuthAPI_LoginLimitWrapsLoginOnly(t *testing.T) {
	registry := session.NewRegistry(func(deviceID string) session.Storage {
		return store.ForDevice(store.NewMemory(), deviceID)
	}, nil)
	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			Error(w, http.StatusTooManyRequests, "too many login attempts")
		})
	}

	r := chi.NewRouter()
	NewAuthHandler(NewHandler(registry, nil), guard.New(domain.UserRole)).RegisterRoutes(r, blocked)

	for path, want := range map[string]int{
		"/api/auth/login":  http.StatusTooManyRequests,
		"/api/auth/logout": http.StatusOK,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}
