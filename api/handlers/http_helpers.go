package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/opskernel/pimhub/internal/auth"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// bearerToken extracts the JWT from an Authorization: Bearer header or,
// failing that, the auth_token cookie.
func bearerToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// requireAuth validates the request's JWT and returns the operator's
// username. There is only one account in this backend, so no role check
// follows — every authenticated request is equally privileged.
func requireAuth(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	claims, err := auth.ValidateJWT(token)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return claims.Subject, true
}
