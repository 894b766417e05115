// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/middleware"
)

// NewRouter assembles the full route tree. The middleware order matters:
// request ids first so every later log line carries one, tenant
// resolution before any handler that opens a transaction, and the admin
// key gate only around the admin subtree.
func NewRouter(handler *Handler, serverCfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   serverCfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.TenantHeader, middleware.AdminKeyHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints stay outside tenant resolution and rate limits so
	// orchestration probes never get throttled or rejected.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", handler.HealthLive)
		r.Get("/ready", handler.HealthReady)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Metrics)
		r.Use(httprate.LimitByIP(serverCfg.RateLimitReqs, serverCfg.RateLimitWindow))
		r.Use(middleware.ResolveTenant(serverCfg.DefaultTenantID))

		r.Post("/ingest/events", handler.IngestEvents)
		r.Post("/ingest/leads", handler.CaptureLead)
		r.Post("/consent", handler.ApplyConsent)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdminKey(serverCfg.AdminKeyHash))

			r.Get("/rollups/metrics", handler.AdminMetricRollups)
			r.Get("/rollups/ingest", handler.AdminIngestRollups)
			r.Get("/summary", handler.AdminSummary)
			r.Post("/rollups/run", handler.AdminRunRollups)
			r.Post("/matview/refresh", handler.AdminRefreshSummary)
			r.Delete("/leads/{id}", handler.AdminDeleteLead)
		})
	})

	return r
}
