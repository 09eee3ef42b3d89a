package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/vigilant-core/internal/auth"
)

// defaultHubPath is where browsers open the realtime channel.
const defaultHubPath = "/medicaoHub"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition (no auth, scraped on the internal network)
	r.Handle("/metrics", promhttp.Handler())

	// Realtime channel (token via ?access_token= since browsers cannot set
	// headers on a WebSocket handshake)
	r.With(s.hubAuthMiddleware).Get(s.hubPath(), s.handleRealtime)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)

			r.Route("/devices", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleListDevices)
				r.With(s.requirePermission(auth.PermDeviceConnect)).Post("/", s.handleConnectDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetDevice)
					r.With(s.requirePermission(auth.PermDeviceDelete)).Delete("/", s.handleDeleteDevice)
					r.With(s.requirePermission(auth.PermDeviceConnect)).Post("/connect", s.handleResendConnect)
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/realtime", s.handleDeviceRealtime)
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/risk", s.handleDeviceRisk)
				})
			})

			r.Route("/broker", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermBrokerRead)).Get("/config", s.handleGetBrokerConfig)
				r.With(s.requirePermission(auth.PermBrokerConfigure)).Put("/config", s.handleUpdateBrokerConfig)
				r.With(s.requirePermission(auth.PermBrokerRead)).Get("/status", s.handleBrokerStatus)
			})

			r.Route("/system", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermSystemRead))
				r.Get("/metrics", s.handleSystemMetrics)
				r.Get("/audit", s.handleListAudit)
			})
		})
	})

	return r
}

func (s *Server) hubPath() string {
	if s.wsCfg.Path == "" {
		return defaultHubPath
	}
	return s.wsCfg.Path
}
