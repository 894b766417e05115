// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package api

import (
	"net/http"

	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/ingest"
	"github.com/funnelgrid/funnelgrid/internal/requestctx"
	"github.com/funnelgrid/funnelgrid/internal/rollup"
)

// Handler holds every dependency the HTTP endpoints reach for.
type Handler struct {
	store      *database.Store
	ingest     *ingest.Service
	aggregator *rollup.Aggregator
	refresher  *rollup.Refresher
	deriver    *requestctx.Deriver
	rollupCfg  config.RollupConfig
}

// NewHandler wires the endpoint dependencies.
func NewHandler(
	store *database.Store,
	ingestSvc *ingest.Service,
	aggregator *rollup.Aggregator,
	refresher *rollup.Refresher,
	deriver *requestctx.Deriver,
	rollupCfg config.RollupConfig,
) *Handler {
	return &Handler{
		store:      store,
		ingest:     ingestSvc,
		aggregator: aggregator,
		refresher:  refresher,
		deriver:    deriver,
		rollupCfg:  rollupCfg,
	}
}

// HealthLive answers as long as the process serves requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respond(w, r).OK(map[string]string{"status": "alive"})
}

// HealthReady additionally requires a responsive database.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respond(w, r).Unavailable("database not reachable")
		return
	}
	respond(w, r).OK(map[string]string{"status": "ready"})
}
