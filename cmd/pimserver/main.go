// Package main is the PIM admin backend's HTTP server entrypoint.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opskernel/pimhub/api/handlers"
	"github.com/opskernel/pimhub/internal/auth"
	"github.com/opskernel/pimhub/internal/config"
	"github.com/opskernel/pimhub/internal/logs"
	"github.com/opskernel/pimhub/internal/pim"
	"github.com/opskernel/pimhub/internal/pim/host"
	"github.com/opskernel/pimhub/internal/pim/installer"

	_ "github.com/opskernel/pimhub/api/docs" // swagger docs
)

// @title PIM Hub API
// @version 1.0
// @description Plugin installation and management backend for an MCDR server.
// @description
// @description Features:
// @description - Plugin catalogue lookup against the MCDR metadata registry
// @description - Dependency-resolving install/uninstall task queue
// @description - Live task progress over polling and WebSocket
// @description - Single-operator JWT authentication

// @contact.name API Support

// @license.name CC BY-NC 4.0
// @license.url https://creativecommons.org/licenses/by-nc/4.0/

// @host localhost:8000
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token (format: "Bearer {token}")

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name auth_token
// @description JWT token (HttpOnly cookie, preferred)

// @tag.name Authentication
// @tag.description Operator login/logout/password endpoints

// @tag.name PIM
// @tag.description Plugin install/uninstall/catalogue/task endpoints

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting pimhub server...")

	cfg := config.Load()

	log.Println("Initializing operator store...")
	if err := auth.InitOperatorStore(); err != nil {
		log.Fatalf("Failed to initialize operator store: %v", err)
	}
	auth.InitJWTKey()

	logs.LoadOpLogs()

	h, err := host.NewFSHost(cfg.PluginDir, cfg.CacheDir, "unknown", "unknown")
	if err != nil {
		log.Fatalf("Failed to initialize plugin host: %v", err)
	}

	pip := installer.NewExecPipInstaller(pythonInterpreter())
	facade := pim.New(h, cfg, pip)

	router := handlers.SetupRouter(facade)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s...\n", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}

func pythonInterpreter() string {
	if v := os.Getenv("PIM_PYTHON"); v != "" {
		return v
	}
	return "python3"
}
