package guard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Authenticated is the part of a session store the guard reads.
type Authenticated interface {
	IsAuthenticated() bool
}

// Lookup returns the session store of the guarded role for a request.
type Lookup func(r *http.Request) Authenticated

type unauthorizedResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect"`
	From     string `json:"from"`
}

// Require lets authenticated requests through. Others are redirected to the
// login view, or get a 401 describing that redirect when they are API calls.
func (g *Guard) Require(lookup Lookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Decide(r.URL.RequestURI(), isAuthenticated(lookup, r))
			if d.Allow {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Cache-Control", "no-store")
			if wantsJSON(r) {
				writeUnauthorized(w, unauthorizedResponse{
					Error:    "unauthorized",
					Redirect: g.spec.LoginPath,
					From:     d.From,
				})
				return
			}
			http.Redirect(w, r, d.Redirect, http.StatusFound)
		})
	}
}

// RedirectIfAuthenticated short-circuits a login view for a role that is
// already signed in, sending it to the carried location or the role's home.
func (g *Guard) RedirectIfAuthenticated(lookup Lookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAuthenticated(lookup, r) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Cache-Control", "no-store")
			http.Redirect(w, r, g.Destination(r.URL.Query().Get(FromParam)), http.StatusFound)
		})
	}
}

func isAuthenticated(lookup Lookup, r *http.Request) bool {
	s := lookup(r)
	return s != nil && s.IsAuthenticated()
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

func writeUnauthorized(w http.ResponseWriter, body unauthorizedResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("guard: failed to write unauthorized response", "error", err)
	}
}
