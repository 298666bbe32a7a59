// Package handlers provides the HTTP bridge's route handlers: operator
// auth and the PIM install/uninstall/task/catalogue endpoints.
package handlers

import (
	"net/http"
	"strings"
	"time"
)

// Router wraps the stdlib mux; Handler adds security headers and the API
// body-size limit to every route. Rate limiting and auth are applied per
// route in SetupRouter.
type Router struct {
	mux *http.ServeMux
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		mux: http.NewServeMux(),
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self'; style-src 'self'; "+
				"connect-src 'self' wss: ws:; frame-ancestors 'self'; "+
				"base-uri 'self'; form-action 'self'")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

// limitAPIBodySize caps request bodies under /api/ so a malicious or
// buggy client can't exhaust memory uploading a huge payload.
func limitAPIBodySize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const maxAPIRequestBodyBytes int64 = 2 << 20 // 2 MiB
		if strings.HasPrefix(r.URL.Path, "/api/") {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				if r.ContentLength > maxAPIRequestBodyBytes {
					writeJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
					return
				}
				if r.Body != nil {
					r.Body = http.MaxBytesReader(w, r.Body, maxAPIRequestBodyBytes)
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server, blocking until ListenAndServe returns.
func (r *Router) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           securityHeaders(limitAPIBodySize(r.mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// Handler returns the fully wrapped handler, for use with a caller-owned
// http.Server (e.g. one that also wants graceful shutdown).
func (r *Router) Handler() http.Handler {
	return securityHeaders(limitAPIBodySize(r.mux))
}
