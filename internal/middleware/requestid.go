// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package middleware holds the HTTP cross-cutting concerns: request-id
// propagation, prometheus instrumentation, tenant resolution and the
// admin key gate. Everything here is chi-compatible
// func(http.Handler) http.Handler.
package middleware

import (
	"net/http"

	"github.com/funnelgrid/funnelgrid/internal/logging"
)

// RequestID assigns each request a unique id (honoring an upstream
// X-Request-ID), echoes it on the response, and threads it through the
// logging context so every log line downstream carries it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
