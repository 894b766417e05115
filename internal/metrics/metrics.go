// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package metrics provides Prometheus instrumentation for the ingest
// pipeline, the rollup aggregator and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest pipeline metrics
	IngestEventsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnelgrid_ingest_events_accepted_total",
			Help: "Events accepted by the ingest pipeline",
		},
		[]string{"tenant", "property"},
	)

	IngestEventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnelgrid_ingest_events_rejected_total",
			Help: "Events rejected at the ingest boundary",
		},
		[]string{"tenant", "reason"},
	)

	IngestLeadsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnelgrid_ingest_leads_captured_total",
			Help: "Lead captures processed, by outcome (created or recaptured)",
		},
		[]string{"tenant", "outcome"},
	)

	SessionsRotated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnelgrid_sessions_rotated_total",
			Help: "Session boundary decisions that opened a new session, by cause",
		},
		[]string{"tenant", "cause"}, // "first", "inactivity", "utm_change"
	)

	HeuristicLinksExamined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnelgrid_heuristic_link_candidates_total",
			Help: "Candidate visitors examined by the heuristic identity linker",
		},
		[]string{"tenant"},
	)

	// Rollup metrics
	RollupRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "funnelgrid_rollup_run_duration_seconds",
			Help:    "Duration of rollup date-range runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RollupDaysProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funnelgrid_rollup_days_processed_total",
			Help: "Calendar days recomputed by the rollup aggregator",
		},
	)

	RollupErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funnelgrid_rollup_errors_total",
			Help: "Rollup runs that failed",
		},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funnelgrid_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnelgrid_db_query_errors_total",
			Help: "DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funnelgrid_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "funnelgrid_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)
)

// ObserveDBQuery records one database query observation.
func ObserveDBQuery(operation, table string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// ObserveHTTPRequest records one HTTP request observation.
func ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}
