package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// The root redirects to the aggregation endpoint so a bare curl of
	// the service does something useful.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/get_all_device_power", http.StatusFound)
	})

	// Legacy aggregation endpoint. Auth runs before any backend fan-out.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/get_all_device_power", s.handleGetAllDevicePower)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Token exchange (no auth required; validates the password itself)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{name}", func(r chi.Router) {
					r.Get("/power", s.handleDevicePower)
					r.Get("/history", s.handleDeviceHistory)
				})
			})

			r.Get("/system/backend", s.handleBackendStats)

			// WebSocket (auth via the same middleware; browsers pass the
			// password as a query parameter)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": s.registry.Count(),
	})
}
