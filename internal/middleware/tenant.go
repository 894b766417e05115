// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/funnelgrid/funnelgrid/internal/logging"
)

// TenantHeader is the request header carrying the tenant identifier.
const TenantHeader = "X-Tenant-ID"

// ResolveTenant resolves the tenant for the request from the X-Tenant-ID
// header, falling back to the configured default. A request that resolves
// to no tenant is rejected before any database work happens.
func ResolveTenant(defaultTenantID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(r.Header.Get(TenantHeader))
			if tenantID == "" {
				tenantID = defaultTenantID
			}
			if tenantID == "" {
				logging.Ctx(r.Context()).Warn().
					Str("path", r.URL.Path).
					Msg("request rejected: no tenant resolved")
				http.Error(w, "missing "+TenantHeader+" header", http.StatusBadRequest)
				return
			}

			ctx := logging.ContextWithTenantID(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantID returns the tenant resolved for this request. It is only
// meaningful below ResolveTenant in the middleware chain.
func TenantID(ctx context.Context) string {
	return logging.TenantIDFromContext(ctx)
}
