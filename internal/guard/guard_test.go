package guard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ashureev/vetcare-gate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flag bool

func (f flag) IsAuthenticated() bool { return bool(f) }

func lookupOf(authenticated bool) Lookup {
	return func(*http.Request) Authenticated { return flag(authenticated) }
}

func TestDecide(t *testing.T) {
	g := New(domain.UserRole)

	d := g.Decide("/patients/42?tab=labs", false)
	assert.False(t, d.Allow)
	assert.Equal(t, "/patients/42?tab=labs", d.From)
	assert.Equal(t, "/login?from=%2Fpatients%2F42%3Ftab%3Dlabs", d.Redirect)

	d = g.Decide("/patients/42", true)
	assert.Equal(t, Decision{Allow: true}, d)

	d = g.Decide("/", false)
	assert.Equal(t, "/login", d.Redirect)
	assert.Equal(t, "/", d.From)
}

func TestDecide_Admin(t *testing.T) {
	g := New(domain.AdminRole)

	d := g.Decide("/admin/staff", false)
	assert.Equal(t, "/admin/login?from=%2Fadmin%2Fstaff", d.Redirect)
	assert.Equal(t, "/admin/staff", d.From)

	d = g.Decide("/admin", false)
	assert.Equal(t, "/admin/login", d.Redirect)
}

func TestDestination(t *testing.T) {
	g := New(domain.UserRole)

	tests := map[string]string{
		"":                        "/",
		"/appointments":           "/appointments",
		"/labs/results/add/7?x=1": "/labs/results/add/7?x=1",
		"/triage#intake":          "/triage",
		"https://evil.example/":   "/",
		"//evil.example/path":     "/",
		"/\\evil.example":         "/",
		"relative/path":           "/",
		"javascript:alert(1)":     "/",
		"/login":                  "/",
		"/login?from=%2Flabs":     "/",
		"/ok\r\nSet-Cookie: x=1":  "/",
	}

	for from, want := range tests {
		assert.Equal(t, want, g.Destination(from), "from %q", from)
	}

	admin := New(domain.AdminRole)
	assert.Equal(t, "/admin", admin.Destination(""))
	assert.Equal(t, "/admin", admin.Destination("/admin/login"))
	assert.Equal(t, "/admin/users", admin.Destination("/admin/users"))
}

func TestRequire_RedirectsBrowser(t *testing.T) {
	g := New(domain.UserRole)
	h := g.Require(lookupOf(false))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("protected handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/3", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/appointments/3", loc.Query().Get(FromParam))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRequire_APIGetsUnauthorized(t *testing.T) {
	g := New(domain.AdminRole)
	h := g.Require(lookupOf(false))(http.NotFoundHandler())

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/admin/staff", nil),
		func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/admin/records", nil)
			r.Header.Set("Accept", "application/json")
			return r
		}(),
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "unauthorized", body["error"])
		assert.Equal(t, "/admin/login", body["redirect"])
		assert.Equal(t, req.URL.RequestURI(), body["from"])
	}
}

func TestRequire_AllowsAuthenticated(t *testing.T) {
	g := New(domain.UserRole)
	h := g.Require(lookupOf(true))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRequire_NilStore(t *testing.T) {
	g := New(domain.UserRole)
	h := g.Require(func(*http.Request) Authenticated { return nil })(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestRedirectIfAuthenticated(t *testing.T) {
	g := New(domain.UserRole)
	loginView := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("renders login when signed out", func(t *testing.T) {
		rec := httptest.NewRecorder()
		g.RedirectIfAuthenticated(lookupOf(false))(loginView).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/login?from=%2Flabs", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("returns to carried location", func(t *testing.T) {
		rec := httptest.NewRecorder()
		g.RedirectIfAuthenticated(lookupOf(true))(loginView).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/login?from=%2Flabs", nil))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/labs", rec.Header().Get("Location"))
	})

	t.Run("falls back to home", func(t *testing.T) {
		rec := httptest.NewRecorder()
		g.RedirectIfAuthenticated(lookupOf(true))(loginView).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/login?from=https%3A%2F%2Fevil.example", nil))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})
}
