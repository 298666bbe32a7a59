package handlers

import (
	"net/http"

	"github.com/opskernel/pimhub/internal/middleware"
	"github.com/opskernel/pimhub/internal/pim"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// installRateLimiter throttles install/uninstall requests per IP: these
// fan out to a remote catalogue and a download, so they're far more
// expensive than a read endpoint.
var installRateLimiter = middleware.NewRateLimiter(1, 5)

func rateLimited(next http.HandlerFunc) http.HandlerFunc {
	wrapped := middleware.RateLimitMiddleware(installRateLimiter, middleware.IPBasedKey)(next)
	return wrapped.ServeHTTP
}

// SetupRouter wires the operator-auth and PIM endpoints onto a fresh
// Router. The /api/pim/* REST endpoints go through AuthMiddleware; the
// password, logs and task-stream handlers check the token themselves;
// login, logout, validate-password and /swagger/ need no token.
func SetupRouter(facade *pim.Facade) *Router {
	router := NewRouter()
	pimHandlers := NewPIMHandlers(facade)

	router.mux.HandleFunc("/api/login", rateLimited(LoginHandler))
	router.mux.HandleFunc("/api/logout", LogoutHandler)
	router.mux.HandleFunc("/api/password", ChangePasswordHandler)
	router.mux.HandleFunc("/api/validate-password", ValidatePasswordHandler)
	router.mux.HandleFunc("/api/logs", LogsHandler)

	router.mux.HandleFunc("/api/pim/install", rateLimited(middleware.AuthMiddleware(pimHandlers.HandleInstall)))
	router.mux.HandleFunc("/api/pim/uninstall", rateLimited(middleware.AuthMiddleware(pimHandlers.HandleUninstall)))
	router.mux.HandleFunc("/api/pim/tasks", middleware.AuthMiddleware(pimHandlers.HandleGetTasks))
	router.mux.HandleFunc("/api/pim/tasks/{id}", middleware.AuthMiddleware(pimHandlers.HandleGetTask))
	router.mux.HandleFunc("/api/pim/catalogue", middleware.AuthMiddleware(pimHandlers.HandleGetCatalogue))
	router.mux.HandleFunc("/api/pim/plugins", middleware.AuthMiddleware(pimHandlers.HandleGetPlugins))

	router.mux.HandleFunc("/ws/pim/tasks/{id}", pimHandlers.HandleTaskStream)

	router.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	return router
}
