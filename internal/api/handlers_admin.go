// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/middleware"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

const dayFormat = "2006-01-02"

// dayRange reads from/to query parameters, defaulting to the trailing
// rollup batch window ending today (UTC).
func (h *Handler) dayRange(r *http.Request) (string, string, error) {
	today := time.Now().UTC()
	from := today.AddDate(0, 0, -(h.rollupCfg.BatchDays - 1)).Format(dayFormat)
	to := today.Format(dayFormat)

	if v := r.URL.Query().Get("from"); v != "" {
		from = v
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to = v
	}

	fromDay, err := time.Parse(dayFormat, from)
	if err != nil {
		return "", "", errors.New("from must be formatted YYYY-MM-DD")
	}
	toDay, err := time.Parse(dayFormat, to)
	if err != nil {
		return "", "", errors.New("to must be formatted YYYY-MM-DD")
	}
	if fromDay.After(toDay) {
		return "", "", errors.New("from must not be after to")
	}
	return from, to, nil
}

// propertyID reads the propertyId query parameter with the configured
// default as fallback.
func (h *Handler) propertyID(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get("propertyId")); v != "" {
		return v
	}
	return h.rollupCfg.DefaultPropertyID
}

// AdminMetricRollups serves the daily traffic rollups for one property.
func (h *Handler) AdminMetricRollups(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	from, to, err := h.dayRange(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	tenant := h.store.Tenant(middleware.TenantID(r.Context()))
	rows, err := tenant.MetricRollupRange(r.Context(), h.propertyID(r), from, to)
	if err != nil {
		rw.Internal(err)
		return
	}
	rw.OK(map[string]any{"from": from, "to": to, "rollups": rows})
}

// AdminIngestRollups serves the daily ingest-health rollups for one
// property.
func (h *Handler) AdminIngestRollups(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	from, to, err := h.dayRange(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	tenant := h.store.Tenant(middleware.TenantID(r.Context()))
	rows, err := tenant.IngestRollupRange(r.Context(), h.propertyID(r), from, to)
	if err != nil {
		rw.Internal(err)
		return
	}
	rw.OK(map[string]any{"from": from, "to": to, "rollups": rows})
}

// AdminSummary serves per-property totals from the dashboard summary
// view. If the view does not exist yet it is created and populated
// before answering, so a fresh deployment never 500s here.
func (h *Handler) AdminSummary(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	tenant := h.store.Tenant(middleware.TenantID(r.Context()))
	rows, err := tenant.PropertySummaries(r.Context())
	if errors.Is(err, database.ErrMaterializedViewMissing) {
		if err = h.refresher.EnsureAndRefresh(r.Context()); err == nil {
			rows, err = tenant.PropertySummaries(r.Context())
		}
	}
	if err != nil {
		rw.Internal(err)
		return
	}

	if propertyID := strings.TrimSpace(r.URL.Query().Get("propertyId")); propertyID != "" {
		filtered := make([]*models.PropertySummary, 0, 1)
		for _, row := range rows {
			if row.PropertyID == propertyID {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	rw.OK(map[string]any{"summaries": rows})
}

// rollupRunRequest is the POST /admin/rollups/run body.
type rollupRunRequest struct {
	PropertyID string `json:"propertyId,omitempty"`
	From       string `json:"from"`
	To         string `json:"to"`
	BatchDays  int    `json:"batchDays,omitempty"`
}

// AdminRunRollups recomputes the rollups for a date range synchronously
// and reports the days processed.
func (h *Handler) AdminRunRollups(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	var req rollupRunRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}

	from, err := time.Parse(dayFormat, req.From)
	if err != nil {
		rw.BadRequest("from must be formatted YYYY-MM-DD")
		return
	}
	to, err := time.Parse(dayFormat, req.To)
	if err != nil {
		rw.BadRequest("to must be formatted YYYY-MM-DD")
		return
	}
	if from.After(to) {
		rw.BadRequest("from must not be after to")
		return
	}

	propertyID := strings.TrimSpace(req.PropertyID)
	if propertyID == "" {
		propertyID = h.rollupCfg.DefaultPropertyID
	}
	batchDays := req.BatchDays
	if batchDays <= 0 {
		batchDays = h.rollupCfg.BatchDays
	}

	tenantID := middleware.TenantID(r.Context())
	result, err := h.aggregator.RollupDateRange(r.Context(), tenantID, propertyID, from, to, batchDays)
	if err != nil {
		rw.Internal(err)
		return
	}
	rw.OK(result)
}

// AdminRefreshSummary rebuilds the dashboard summary view from the
// current rollup rows.
func (h *Handler) AdminRefreshSummary(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)
	if err := h.refresher.EnsureAndRefresh(r.Context()); err != nil {
		rw.Internal(err)
		return
	}
	rw.OK(map[string]string{"status": "refreshed"})
}

// AdminDeleteLead removes a lead with its PII scrub cascade.
func (h *Handler) AdminDeleteLead(w http.ResponseWriter, r *http.Request) {
	rw := respond(w, r)

	leadID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(leadID); err != nil {
		rw.BadRequest("lead id must be a valid uuid")
		return
	}

	tenantID := middleware.TenantID(r.Context())
	err := h.ingest.DeleteLead(r.Context(), tenantID, leadID)
	switch {
	case err == nil:
		rw.NoContent()
	case errors.Is(err, database.ErrNotFound):
		rw.NotFound("lead not found")
	default:
		rw.Internal(err)
	}
}
