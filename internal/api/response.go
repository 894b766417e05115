// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package api is the HTTP boundary: routing, request decoding and the
// standardized response envelope. Handlers stay thin; every business
// decision lives in the ingest, rollup and database packages.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/funnelgrid/funnelgrid/internal/logging"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorBody carries a machine-readable code plus a human message.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Meta is attached to every response for tracing.
type Meta struct {
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeServiceUnavail   = "SERVICE_UNAVAILABLE"
)

// responder writes envelope responses for one request.
type responder struct {
	w     http.ResponseWriter
	r     *http.Request
	start time.Time
}

func respond(w http.ResponseWriter, r *http.Request) *responder {
	return &responder{w: w, r: r, start: time.Now()}
}

func (rw *responder) meta() *Meta {
	return &Meta{
		RequestID:  logging.RequestIDFromContext(rw.r.Context()),
		Timestamp:  time.Now(),
		DurationMs: time.Since(rw.start).Milliseconds(),
	}
}

// OK writes a 200 response with data.
func (rw *responder) OK(data any) {
	rw.writeJSON(http.StatusOK, Response{Success: true, Data: data, Meta: rw.meta()})
}

// Accepted writes a 202 for work that was queued rather than completed.
func (rw *responder) Accepted(data any) {
	rw.writeJSON(http.StatusAccepted, Response{Success: true, Data: data, Meta: rw.meta()})
}

// NoContent writes a bare 204.
func (rw *responder) NoContent() {
	rw.w.WriteHeader(http.StatusNoContent)
}

// Fail writes an error envelope with the given status and code.
func (rw *responder) Fail(status int, code, message string) {
	rw.FailWithDetails(status, code, message, nil)
}

// FailWithDetails writes an error envelope carrying extra details.
func (rw *responder) FailWithDetails(status int, code, message string, details any) {
	requestID := logging.RequestIDFromContext(rw.r.Context())
	rw.writeJSON(status, Response{
		Success: false,
		Error: &ErrorBody{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
		Meta: rw.meta(),
	})
}

// BadRequest writes a 400.
func (rw *responder) BadRequest(message string) {
	rw.Fail(http.StatusBadRequest, ErrCodeBadRequest, message)
}

// ValidationFailed writes a 400 with the validation details attached.
func (rw *responder) ValidationFailed(err error) {
	rw.FailWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, "request validation failed", err.Error())
}

// NotFound writes a 404.
func (rw *responder) NotFound(message string) {
	rw.Fail(http.StatusNotFound, ErrCodeNotFound, message)
}

// Internal writes a 500 and logs the underlying error; the client only
// sees the generic message.
func (rw *responder) Internal(err error) {
	logging.Ctx(rw.r.Context()).Error().Err(err).Str("path", rw.r.URL.Path).Msg("request failed")
	rw.Fail(http.StatusInternalServerError, ErrCodeInternalError, "internal error")
}

// Unavailable writes a 503 for readiness failures.
func (rw *responder) Unavailable(message string) {
	rw.Fail(http.StatusServiceUnavailable, ErrCodeServiceUnavail, message)
}

func (rw *responder) writeJSON(status int, body Response) {
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(status)
	if err := json.NewEncoder(rw.w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// decodeJSON decodes a request body into dst, rejecting unknown fields
// so typos in client payloads fail loudly instead of silently dropping
// data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
