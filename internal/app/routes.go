package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"oauth-bridge/internal/auth"
	"oauth-bridge/internal/handlers"
	"oauth-bridge/internal/middleware"
)

// SetupRoutes configures all HTTP routes. Only the health check and the
// OAuth callback are unauthenticated: providers redirect browsers to the
// callback and cannot attach the API key.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, a *auth.Auth) {
	router.Use(middleware.LoggingMiddleware)

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/auth/{provider}/callback", h.Callback).Methods("GET")

	protected := router.NewRoute().Subrouter()
	protected.Use(a.RequireAuth)

	protected.HandleFunc("/auth/{provider}/start", h.StartAuth).Methods("POST")
	protected.HandleFunc("/connections", h.ListConnections).Methods("GET")
	protected.HandleFunc("/connections/{provider}", h.DeleteConnection).Methods("DELETE")
	// all methods: the proxy mirrors whatever verb the caller sends
	protected.HandleFunc("/proxy/{provider}/{rest:.*}", h.Proxy)
}

// NewRouter builds the service router.
func NewRouter(h *handlers.Handlers, a *auth.Auth) http.Handler {
	router := mux.NewRouter()
	SetupRoutes(router, h, a)
	return router
}
