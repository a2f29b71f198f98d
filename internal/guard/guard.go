// Package guard decides whether a request may reach a role's protected views
// or must be sent to that role's login view first.
package guard

import (
	"net/url"
	"strings"

	"github.com/ashureev/vetcare-gate/internal/domain"
)

// FromParam carries the originally requested location through the login view.
const FromParam = "from"

// Decision is the outcome of evaluating a requested location.
type Decision struct {
	// Allow means the protected content may be rendered.
	Allow bool
	// Redirect is the login location to navigate to, replacing the current
	// history entry, when Allow is false.
	Redirect string
	// From is the location the login view should return to.
	From string
}

// Guard gates one role's protected subtree.
type Guard struct {
	spec domain.RoleSpec
}

// New creates a guard for spec.
func New(spec domain.RoleSpec) *Guard {
	return &Guard{spec: spec}
}

// Role returns the guarded role.
func (g *Guard) Role() domain.RoleSpec {
	return g.spec
}

// Decide evaluates a request for location.
func (g *Guard) Decide(location string, authenticated bool) Decision {
	if authenticated {
		return Decision{Allow: true}
	}
	from := g.Destination(location)
	return Decision{
		Redirect: g.LoginURL(from),
		From:     from,
	}
}

// LoginURL returns the login location carrying from.
func (g *Guard) LoginURL(from string) string {
	if from == "" || from == g.spec.HomePath {
		return g.spec.LoginPath
	}
	return g.spec.LoginPath + "?" + url.Values{FromParam: {from}}.Encode()
}

// Destination resolves where to go after login. Unsafe or missing locations,
// and the login view itself, fall back to the role's home.
func (g *Guard) Destination(from string) string {
	loc, ok := SafeLocation(from)
	if !ok {
		return g.spec.HomePath
	}
	if path, _, _ := strings.Cut(loc, "?"); path == g.spec.LoginPath {
		return g.spec.HomePath
	}
	return loc
}

// SafeLocation accepts only same-origin absolute paths, optionally with a
// query, and returns them in normalized form.
func SafeLocation(loc string) (string, bool) {
	if loc == "" || loc[0] != '/' || strings.HasPrefix(loc, "//") || strings.ContainsAny(loc, "\\\r\n\t") {
		return "", false
	}
	u, err := url.Parse(loc)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil || u.Opaque != "" {
		return "", false
	}
	u.Fragment = ""
	return u.RequestURI(), true
}
