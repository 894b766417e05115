// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/funnelgrid/funnelgrid/internal/logging"
)

func checkStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d (body %q)", want, rec.Code, rec.Body.String())
	}
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	checkStatus(t, rec, http.StatusNoContent)
	if seen == "" {
		t.Fatal("expected a generated request id in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Fatalf("response header %q does not match context id %q", got, seen)
	}
}

func TestRequestIDHonorsUpstreamHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "upstream-id-123" {
		t.Fatalf("expected upstream id to pass through, got %q", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "upstream-id-123" {
		t.Fatalf("expected upstream id echoed on response, got %q", got)
	}
}

func TestMetricsRecordsStatus(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	checkStatus(t, rec, http.StatusTeapot)
}

func TestMetricsDefaultsImplicitOK(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Write without an explicit WriteHeader.
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	checkStatus(t, rec, http.StatusOK)
}

func TestResolveTenantFromHeader(t *testing.T) {
	var seen string
	handler := ResolveTenant("fallback")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = TenantID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/events", nil)
	req.Header.Set(TenantHeader, "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "acme" {
		t.Fatalf("expected tenant acme, got %q", seen)
	}
}

func TestResolveTenantFallsBackToDefault(t *testing.T) {
	var seen string
	handler := ResolveTenant("fallback")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = TenantID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen != "fallback" {
		t.Fatalf("expected fallback tenant, got %q", seen)
	}
}

func TestResolveTenantRejectsWhenUnresolvable(t *testing.T) {
	called := false
	handler := ResolveTenant("")(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, "   ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	checkStatus(t, rec, http.StatusBadRequest)
	if called {
		t.Fatal("handler must not run without a resolved tenant")
	}
}

func TestRequireAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash test key: %v", err)
	}

	handler := RequireAdminKey(string(hash))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"valid key", "s3cret", http.StatusNoContent},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/summary", nil)
			if tt.key != "" {
				req.Header.Set(AdminKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			checkStatus(t, rec, tt.wantStatus)
		})
	}
}

func TestRequireAdminKeyDisabledWithoutHash(t *testing.T) {
	handler := RequireAdminKey("")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/summary", nil)
	req.Header.Set(AdminKeyHeader, "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	checkStatus(t, rec, http.StatusNotFound)
}
