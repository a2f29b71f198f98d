// Package middleware provides HTTP middleware for the VetCare session gate.
package middleware

import (
	"net/http"
	"slices"
)

// CORS returns middleware that handles CORS headers for the SPA dev server.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			wildcard := slices.Contains(allowedOrigins, "*")
			explicit := origin != "" && slices.Contains(allowedOrigins, origin)

			if origin != "" && (wildcard || explicit) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-VetCare-Tab-ID")
				w.Header().Add("Vary", "Origin")
				// Session cookies only travel to explicitly listed origins.
				// Echoing credentials to a wildcard match enables CSRF.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
