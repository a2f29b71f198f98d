package api

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/ashureev/vetcare-gate/internal/domain"
	"github.com/ashureev/vetcare-gate/internal/guard"
	"github.com/ashureev/vetcare-gate/internal/identity"
	"github.com/go-chi/chi/v5"
)

const maxLoginForm = 4 << 10

// LoginView serves the server-rendered login page of one role.
type LoginView struct {
	*Handler
	guard *guard.Guard
	tmpl  *template.Template
	name  string
}

type loginPage struct {
	Title        string
	Action       string
	From         string
	Email        string
	Error        string
	HintLabel    string
	HintEmail    string
	HintPassword string
}

// NewLoginView creates the login page for the role g guards, rendering the
// template called name from tmpl.
func NewLoginView(base *Handler, g *guard.Guard, tmpl *template.Template, name string) *LoginView {
	return &LoginView{Handler: base, guard: g, tmpl: tmpl, name: name}
}

// RegisterRoutes registers the login page and the form logout endpoint.
// onlyAnonymous guards the page, loginLimit throttles form submissions.
func (v *LoginView) RegisterRoutes(r chi.Router, onlyAnonymous, loginLimit func(http.Handler) http.Handler) {
	spec := v.guard.Role()

	page := r.With()
	if onlyAnonymous != nil {
		page = page.With(onlyAnonymous)
	}
	page.Get(spec.LoginPath, v.Show)
	if loginLimit != nil {
		page = page.With(loginLimit)
	}
	page.Post(spec.LoginPath, v.Submit)

	r.Post(logoutPath(spec), v.Logout)
	r.Get(logoutPath(spec), v.toLogin)
}

// Show renders an empty form.
func (v *LoginView) Show(w http.ResponseWriter, r *http.Request) {
	v.render(w, http.StatusOK, v.page(r.URL.Query().Get(guard.FromParam), "", ""))
}

// Submit checks the posted credentials and redirects to the carried
// location on success. On failure the form is shown again with the email kept.
func (v *LoginView) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginForm)
	if err := r.ParseForm(); err != nil {
		v.logger.Debug("Malformed login form", "error", err)
	}
	from := r.FormValue(guard.FromParam)
	email := r.PostFormValue("email")

	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" || !v.registry.Login(r.Context(), deviceID, v.guard.Role().Role, email, r.PostFormValue("password")) {
		v.render(w, http.StatusUnauthorized, v.page(from, email, v.errorText()))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, v.guard.Destination(from), http.StatusSeeOther)
}

// Logout clears the role's session and returns to the login page.
func (v *LoginView) Logout(w http.ResponseWriter, r *http.Request) {
	if deviceID := identity.DeviceIDFromContext(r.Context()); deviceID != "" {
		v.registry.Logout(r.Context(), deviceID, v.guard.Role().Role)
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, v.guard.Role().LoginPath, http.StatusSeeOther)
}

// toLogin answers a GET on the logout path. Signing out needs a POST, so this
// only returns to the login view, which forwards signed-in users home.
func (v *LoginView) toLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, v.guard.Role().LoginPath, http.StatusFound)
}

func (v *LoginView) page(from, email, errText string) loginPage {
	spec := v.guard.Role()
	title := "Sign in to VetCare Pro"
	label := "Demo credentials"
	if spec.Role == domain.RoleAdmin {
		title = "VetCare Pro Admin"
		label = "Admin credentials"
	}
	// Only carry locations the redirect would honor.
	if _, ok := guard.SafeLocation(from); !ok {
		from = ""
	}
	return loginPage{
		Title:        title,
		Action:       spec.LoginPath,
		From:         from,
		Email:        email,
		Error:        errText,
		HintLabel:    label,
		HintEmail:    spec.Credentials.Email,
		HintPassword: spec.Credentials.Password,
	}
}

// errorText never says which field was wrong.
func (v *LoginView) errorText() string {
	if v.guard.Role().Role == domain.RoleAdmin {
		return "Invalid email or password. Use the admin credentials below."
	}
	return "Invalid email or password. Use the demo credentials below."
}

func (v *LoginView) render(w http.ResponseWriter, status int, page loginPage) {
	var buf bytes.Buffer
	if err := v.tmpl.ExecuteTemplate(&buf, v.name, page); err != nil {
		v.logger.Error("Failed to render login view", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		v.logger.Debug("Failed to write login view", "error", err)
	}
}

func logoutPath(spec domain.RoleSpec) string {
	if spec.Role == domain.RoleAdmin {
		return "/admin/logout"
	}
	return "/logout"
}
