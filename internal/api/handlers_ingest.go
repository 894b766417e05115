// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/consent"
	"github.com/funnelgrid/funnelgrid/internal/ingest"
	"github.com/funnelgrid/funnelgrid/internal/middleware"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

// eventBatchRequest is the POST /ingest/events body.
type eventBatchRequest struct {
	Events []ingest.EventInput `json:"events"`
}

// IngestEvents accepts a batch of 1..n events for the resolved tenant.
// Per-item validation failures are reported in the result counters, not
// as a request failure; only a malformed body or a storage error fails
// the whole request.
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	var req eventBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if len(req.Events) == 0 {
		rw.BadRequest("events must contain at least one item")
		return
	}

	tenantID := middleware.TenantID(r.Context())
	reqCtx := h.deriver.FromRequest(r)

	result, err := h.ingest.IngestEvents(r.Context(), tenantID, reqCtx, req.Events)
	if err != nil {
		rw.Internal(err)
		return
	}
	rw.OK(result)
}

// CaptureLead accepts one lead-capture form submission.
func (h *Handler) CaptureLead(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	var input ingest.LeadInput
	if err := decodeJSON(r, &input); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}

	tenantID := middleware.TenantID(r.Context())
	reqCtx := h.deriver.FromRequest(r)

	result, err := h.ingest.CaptureLead(r.Context(), tenantID, reqCtx, input)
	if err != nil {
		// Validation failures were already recorded as rejections.
		rw.ValidationFailed(err)
		return
	}
	rw.OK(result)
}

// consentRequest is the POST /consent body. The tenant comes from the
// header, the ip hash from the request unless the caller supplies one.
type consentRequest struct {
	LeadID     string  `json:"leadId"`
	NextStatus string  `json:"nextStatus"`
	Source     string  `json:"source"`
	IPHash     *string `json:"ipHash,omitempty"`
}

// ApplyConsent applies a consent status to a lead. A lead id that
// matches no row is a silent no-op and still answers 200.
func (h *Handler) ApplyConsent(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	var req consentRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}

	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		rw.BadRequest("leadId must be a valid uuid")
		return
	}
	status := models.ConsentStatus(req.NextStatus)
	if !status.Valid() {
		rw.BadRequest("nextStatus must be one of pending, express, implied, withdrawn")
		return
	}

	ipHash := req.IPHash
	if ipHash == nil {
		derived := h.deriver.FromRequest(r).IPHash
		ipHash = &derived
	}

	tenantID := middleware.TenantID(r.Context())
	if err := h.ingest.ApplyConsent(r.Context(), tenantID, consent.Apply{
		LeadID:     leadID,
		NextStatus: status,
		Source:     req.Source,
		IPHash:     ipHash,
	}); err != nil {
		rw.Internal(err)
		return
	}
	rw.OK(map[string]string{"leadId": req.LeadID, "status": string(status)})
}
