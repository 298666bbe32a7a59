// Package handlers provides the HTTP bridge's route handlers: operator
// auth and the PIM install/uninstall/task/catalogue endpoints.
package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/opskernel/pimhub/internal/auth"
	"github.com/opskernel/pimhub/internal/logs"
	"github.com/opskernel/pimhub/internal/utils"
)

func clientIP(r *http.Request) string {
	// SECURITY WARNING: trusting these headers blindly is only safe behind
	// a reverse proxy that strips/overwrites them for untrusted clients.
	if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		parts := strings.Split(v, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// LoginRequest is the login endpoint's request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the login endpoint's success body.
type LoginResponse struct {
	Token    string `json:"token"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

// LoginHandler authenticates the operator and issues a JWT, rate limited
// per IP and per username so a credential-stuffing attempt can't exhaust
// the account's lockout counter from a single source.
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	ip := clientIP(r)
	if !auth.GetLoginLimiterForKey("ip:" + ip).Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		return
	}
	uname := strings.ToLower(strings.TrimSpace(req.Username))
	if uname != "" && !auth.GetLoginLimiterForKey("user:"+uname).Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		return
	}

	op := auth.ValidateOperator(req.Username, req.Password)
	if op == nil {
		auth.RecordFailedLogin(req.Username, ip)
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	jwtToken, err := auth.GenerateJWT(op.Username)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    jwtToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   86400,
	})

	logs.LogOperation(op.Username, "login", "operator logged in", r.RemoteAddr)
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:    jwtToken,
		Message:  "Login successful",
		Username: op.Username,
	})
}

// LogoutHandler revokes the presented JWT server-side (defense in depth
// against a token captured before logout) and clears the auth cookie.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if token := bearerToken(r); token != "" {
		auth.RevokeJWT(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// ChangePasswordHandler lets the authenticated operator change their own
// password.
func ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	username, ok := requireAuth(w, r)
	if !ok {
		return
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.NewPassword == "" {
		writeJSONError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	if !utils.ValidatePasswordPolicy(req.NewPassword) {
		writeJSONError(w, http.StatusBadRequest, "Password does not meet complexity requirements")
		return
	}

	if err := auth.ChangePassword(username, req.OldPassword, req.NewPassword); err != nil {
		switch err.Error() {
		case "old_password is required", "new_password is required":
			writeJSONError(w, http.StatusBadRequest, err.Error())
		case "invalid old password":
			writeJSONError(w, http.StatusUnauthorized, "Invalid old password")
		case "user not found":
			writeJSONError(w, http.StatusNotFound, "User not found")
		default:
			writeJSONError(w, http.StatusInternalServerError, "Failed to change password")
		}
		return
	}

	logs.LogOperation(username, "change_password", "operator changed their password", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ValidatePasswordHandler reports whether a candidate password meets the
// complexity policy, so the frontend can check before submitting.
func ValidatePasswordHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"valid": utils.ValidatePasswordPolicy(req.Password)})
}

// LogsHandler returns the operator audit trail.
func LogsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, ok := requireAuth(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs.GetLogs()})
}
