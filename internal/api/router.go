package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-pjlink/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.metrics.Middleware)

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/projectors", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermProjectorRead)).Get("/", s.handleListProjectors)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermProjectorRead)).Get("/", s.handleGetProjector)
					r.With(s.requirePermission(auth.PermProjectorRead)).Get("/events", s.handleListEvents)
					r.With(s.requirePermission(auth.PermProjectorRead)).Get("/telemetry", s.handleTelemetry)
					r.With(s.requirePermission(auth.PermProjectorOperate)).Post("/commands", s.handleCommand)
				})
			})

			r.With(s.requirePermission(auth.PermSystemAdmin)).Put("/system/log-level", s.handleSetLogLevel)
		})
	})

	// WebSocket authenticates in the handler (browsers cannot set headers).
	r.Get(wsPath(s.wsCfg), s.handleWebSocket)

	return r
}
