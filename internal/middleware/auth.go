// Package middleware provides the HTTP middleware the bridge wraps its
// routes in: JWT auth and per-key rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/opskernel/pimhub/internal/auth"
)

// AuthMiddleware rejects any request without a valid, non-revoked JWT,
// accepted either as a Bearer Authorization header or an auth_token cookie.
func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			cookie, err := r.Cookie("auth_token")
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			authHeader = "Bearer " + cookie.Value
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if _, err := auth.ValidateJWT(parts[1]); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}
