// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

/*
matview.go - Dashboard Summary Materialized View

DuckDB has no CREATE MATERIALIZED VIEW, so dashboard_summary_mv is a
plain table rebuilt by RefreshSummaryView: delete everything, re-insert
from daily_metric_rollups in one transaction. Readers either see the
previous snapshot or the new one, never a partial rebuild.

The view is not created by the base schema. EnsureSummaryView sets it up
on demand; reads against a missing view report ErrMaterializedViewMissing
so callers can distinguish "not provisioned" from "no data".
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/funnelgrid/funnelgrid/internal/logging"
	"github.com/funnelgrid/funnelgrid/internal/metrics"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

const summaryViewName = "dashboard_summary_mv"

// EnsureSummaryView creates the summary table if it does not exist.
// Idempotent.
func (p *PrivilegedStore) EnsureSummaryView(ctx context.Context) error {
	ctx, cancel := p.store.ensureContext(ctx)
	defer cancel()

	query := `
		CREATE TABLE IF NOT EXISTS dashboard_summary_mv (
			tenant_id VARCHAR NOT NULL,
			property_id VARCHAR NOT NULL,
			days BIGINT NOT NULL,
			unique_visitors BIGINT NOT NULL,
			page_views BIGINT NOT NULL,
			form_submits BIGINT NOT NULL,
			new_leads BIGINT NOT NULL,
			first_day VARCHAR NOT NULL,
			last_day VARCHAR NOT NULL,
			refreshed_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, property_id)
		)`
	if _, err := p.store.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create summary view: %w", err)
	}
	return nil
}

// RefreshSummaryView rebuilds the summary table from the metric rollups.
// Returns ErrMaterializedViewMissing if EnsureSummaryView was never run.
func (p *PrivilegedStore) RefreshSummaryView(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := p.store.ensureContext(ctx)
	defer cancel()

	var count int
	if err := p.store.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM duckdb_tables() WHERE table_name = ?`,
		summaryViewName).Scan(&count); err != nil {
		return fmt.Errorf("failed to probe for summary view: %w", err)
	}
	if count == 0 {
		return ErrMaterializedViewMissing
	}

	tx, err := p.store.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin refresh transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				logging.Warn().Err(rbErr).Msg("Failed to roll back summary view refresh")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dashboard_summary_mv`); err != nil {
		return fmt.Errorf("failed to clear summary view: %w", err)
	}

	rebuild := `
		INSERT INTO dashboard_summary_mv (
			tenant_id, property_id, days,
			unique_visitors, page_views, form_submits, new_leads,
			first_day, last_day, refreshed_at
		)
		SELECT tenant_id, property_id, COUNT(*),
		       SUM(unique_visitors), SUM(page_views),
		       SUM(form_submits), SUM(new_leads),
		       MIN(day), MAX(day), ?
		FROM daily_metric_rollups
		GROUP BY tenant_id, property_id`
	if _, err := tx.ExecContext(ctx, rebuild, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to rebuild summary view: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summary view refresh: %w", err)
	}
	committed = true

	metrics.ObserveDBQuery("refresh", summaryViewName, start, nil)
	return nil
}

// PropertySummaries returns the tenant's rows from the summary view,
// ordered by property. Returns ErrMaterializedViewMissing if the view
// has not been provisioned.
func (t *TenantStore) PropertySummaries(ctx context.Context) ([]*models.PropertySummary, error) {
	ctx, cancel := t.store.ensureContext(ctx)
	defer cancel()

	var count int
	if err := t.store.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM duckdb_tables() WHERE table_name = ?`,
		summaryViewName).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to probe for summary view: %w", err)
	}
	if count == 0 {
		return nil, ErrMaterializedViewMissing
	}

	query := `
		SELECT tenant_id, property_id, days,
		       unique_visitors, page_views, form_submits, new_leads,
		       first_day, last_day, refreshed_at
		FROM dashboard_summary_mv
		WHERE tenant_id = ?
		ORDER BY property_id`

	rows, err := t.store.conn.QueryContext(ctx, query, t.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary view: %w", err)
	}
	defer rows.Close()

	var summaries []*models.PropertySummary
	for rows.Next() {
		s := &models.PropertySummary{}
		if err := rows.Scan(
			&s.TenantID, &s.PropertyID, &s.Days,
			&s.UniqueVisitors, &s.PageViews, &s.FormSubmits, &s.NewLeads,
			&s.FirstDay, &s.LastDay, &s.RefreshedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan property summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
