package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-matter/internal/auth"
)

// healthPath is polled by supervisors, so its access log is kept at debug.
const healthPath = "/api/v1/health"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Get("/health", s.handleHealth)

		// WebSocket authenticates with a single-use ticket, not a header
		r.Get("/ws", s.handleWebSocket)

		// Protected when JWT auth is enabled
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermSystemRead)).Get("/metrics", s.handleMetrics)
			r.With(s.requirePermission(auth.PermSystemRead)).Get("/metrics/history", s.handleMetricsHistory)

			r.Route("/system/log-level", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermSystemRead)).Get("/", s.handleGetLogLevel)
				r.With(s.requirePermission(auth.PermSystemConfigure)).Put("/", s.handleSetLogLevel)
			})

			// Dynamic endpoint slot table and live endpoint list
			r.With(s.requirePermission(auth.PermEndpointRead)).Get("/endpoints", s.handleListEndpoints)
			r.With(s.requirePermission(auth.PermEndpointRead)).Post("/ws/ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				read := s.requirePermission(auth.PermDeviceRead)
				configure := s.requirePermission(auth.PermDeviceConfigure)
				operate := s.requirePermission(auth.PermBridgeOperate)

				r.With(read).Get("/", s.handleListDevices)
				r.With(configure).Post("/", s.handleCreateDevice)
				r.With(read).Get("/stats", s.handleDeviceStats)

				r.Route("/{id}", func(r chi.Router) {
					r.With(read).Get("/", s.handleGetDevice)
					r.With(configure).Patch("/", s.handleUpdateDevice)
					r.With(configure).Delete("/", s.handleDeleteDevice)
					r.With(operate).Post("/bridge", s.handleBridgeDevice)
					r.With(operate).Delete("/bridge", s.handleUnbridgeDevice)
				})
			})

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !s.bridge.Ready() {
		status = "starting"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
