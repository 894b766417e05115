// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package rollup

import (
	"context"
	"errors"
	"fmt"

	"github.com/funnelgrid/funnelgrid/internal/database"
)

// Refresher maintains the dashboard summary materialized view.
type Refresher struct {
	priv *database.PrivilegedStore
}

// NewRefresher creates a refresher.
func NewRefresher(priv *database.PrivilegedStore) *Refresher {
	return &Refresher{priv: priv}
}

// Refresh rebuilds the summary view. A missing view is reported as
// database.ErrMaterializedViewMissing so callers can decide between
// provisioning and failing.
func (r *Refresher) Refresh(ctx context.Context) error {
	return r.priv.RefreshSummaryView(ctx)
}

// EnsureAndRefresh provisions the view when absent, then rebuilds it.
// This is the reaction path for the missing-view error.
func (r *Refresher) EnsureAndRefresh(ctx context.Context) error {
	err := r.priv.RefreshSummaryView(ctx)
	if errors.Is(err, database.ErrMaterializedViewMissing) {
		if err := r.priv.EnsureSummaryView(ctx); err != nil {
			return fmt.Errorf("failed to provision summary view: %w", err)
		}
		return r.priv.RefreshSummaryView(ctx)
	}
	return err
}
