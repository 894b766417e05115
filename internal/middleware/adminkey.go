// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/funnelgrid/funnelgrid/internal/logging"
)

// AdminKeyHeader is the request header carrying the admin API key.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey protects the admin surface with a bcrypt-hashed API key.
// When no hash is configured the whole surface is disabled and answers 404,
// indistinguishable from routes that do not exist.
func RequireAdminKey(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				http.NotFound(w, r)
				return
			}

			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				http.Error(w, "missing "+AdminKeyHeader+" header", http.StatusUnauthorized)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				logging.Ctx(r.Context()).Warn().
					Str("path", r.URL.Path).
					Msg("admin request rejected: invalid key")
				http.Error(w, "invalid admin key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
