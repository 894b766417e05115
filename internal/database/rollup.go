// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

/*
rollup.go - Daily Aggregate Recomputation

Each rollup run recomputes one (tenant, property, UTC day) cell from the
raw tables and overwrites the corresponding rollup row via
ON CONFLICT DO UPDATE. Full recompute, not incremental delta: re-running
after late-arriving or corrected data converges to correct values, at the
cost of re-scanning the day's raw rows.

Day windows are half-open UTC intervals [day 00:00:00, next day 00:00:00).
Bucketing never uses local time: two events 1ms apart across a UTC
midnight land in different rows.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/funnelgrid/funnelgrid/internal/metrics"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

// DayWindow returns the half-open UTC window [start, end) for the
// calendar day containing t.
func DayWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// RollupDay recomputes and upserts the DailyMetricRollup and
// DailyIngestRollup rows for one (tenant, property, UTC day). Idempotent:
// running it twice produces identical rows.
func (p *PrivilegedStore) RollupDay(ctx context.Context, tenantID, propertyID string, day time.Time) error {
	start := time.Now()
	ctx, cancel := p.store.ensureContext(ctx)
	defer cancel()

	windowStart, windowEnd := DayWindow(day)
	dayKey := windowStart.Format(models.DayFormat)

	metric, err := p.computeMetricRollup(ctx, tenantID, propertyID, windowStart, windowEnd)
	if err != nil {
		metrics.ObserveDBQuery("rollup", "daily_metric_rollups", start, err)
		return fmt.Errorf("failed to compute metric rollup for %s: %w", dayKey, err)
	}

	ingest, err := p.computeIngestRollup(ctx, tenantID, propertyID, windowStart, windowEnd)
	if err != nil {
		metrics.ObserveDBQuery("rollup", "daily_ingest_rollups", start, err)
		return fmt.Errorf("failed to compute ingest rollup for %s: %w", dayKey, err)
	}

	computedAt := time.Now().UTC()

	upsertMetric := `
		INSERT INTO daily_metric_rollups (
			tenant_id, property_id, day,
			unique_visitors, page_views, sessions_started,
			form_starts, form_submits, new_leads, identity_links,
			computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, property_id, day) DO UPDATE SET
			unique_visitors = EXCLUDED.unique_visitors,
			page_views = EXCLUDED.page_views,
			sessions_started = EXCLUDED.sessions_started,
			form_starts = EXCLUDED.form_starts,
			form_submits = EXCLUDED.form_submits,
			new_leads = EXCLUDED.new_leads,
			identity_links = EXCLUDED.identity_links,
			computed_at = EXCLUDED.computed_at`

	if _, err := p.store.conn.ExecContext(ctx, upsertMetric,
		tenantID, propertyID, dayKey,
		metric.UniqueVisitors, metric.PageViews, metric.SessionsStarted,
		metric.FormStarts, metric.FormSubmits, metric.NewLeads, metric.IdentityLinks,
		computedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert metric rollup for %s: %w", dayKey, err)
	}

	upsertIngest := `
		INSERT INTO daily_ingest_rollups (
			tenant_id, property_id, day,
			events_accepted, events_rejected, leads_captured,
			computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, property_id, day) DO UPDATE SET
			events_accepted = EXCLUDED.events_accepted,
			events_rejected = EXCLUDED.events_rejected,
			leads_captured = EXCLUDED.leads_captured,
			computed_at = EXCLUDED.computed_at`

	if _, err := p.store.conn.ExecContext(ctx, upsertIngest,
		tenantID, propertyID, dayKey,
		ingest.EventsAccepted, ingest.EventsRejected, ingest.LeadsCaptured,
		computedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert ingest rollup for %s: %w", dayKey, err)
	}

	metrics.ObserveDBQuery("rollup", "daily_metric_rollups", start, nil)
	return nil
}

// computeMetricRollup runs the aggregate queries for one day window.
func (p *PrivilegedStore) computeMetricRollup(ctx context.Context, tenantID, propertyID string, windowStart, windowEnd time.Time) (*models.DailyMetricRollup, error) {
	rollup := &models.DailyMetricRollup{TenantID: tenantID, PropertyID: propertyID}

	counts := []struct {
		target *int64
		query  string
		args   []interface{}
	}{
		{
			&rollup.UniqueVisitors,
			`SELECT COUNT(DISTINCT visitor_id) FROM events
			 WHERE tenant_id = ? AND property_id = ? AND occurred_at >= ? AND occurred_at < ?`,
			[]interface{}{tenantID, propertyID, windowStart, windowEnd},
		},
		{
			&rollup.PageViews,
			`SELECT COUNT(*) FROM events
			 WHERE tenant_id = ? AND property_id = ? AND event_type = ?
			   AND occurred_at >= ? AND occurred_at < ?`,
			[]interface{}{tenantID, propertyID, models.EventTypePageView, windowStart, windowEnd},
		},
		{
			&rollup.SessionsStarted,
			`SELECT COUNT(*) FROM sessions
			 WHERE tenant_id = ? AND property_id = ? AND started_at >= ? AND started_at < ?`,
			[]interface{}{tenantID, propertyID, windowStart, windowEnd},
		},
		{
			&rollup.FormStarts,
			`SELECT COUNT(*) FROM events
			 WHERE tenant_id = ? AND property_id = ? AND event_type = ?
			   AND occurred_at >= ? AND occurred_at < ?`,
			[]interface{}{tenantID, propertyID, models.EventTypeFormStart, windowStart, windowEnd},
		},
		{
			&rollup.FormSubmits,
			`SELECT COUNT(*) FROM form_submissions
			 WHERE tenant_id = ? AND property_id = ? AND created_at >= ? AND created_at < ?`,
			[]interface{}{tenantID, propertyID, windowStart, windowEnd},
		},
		{
			// A lead is "new" on the property where its first capture
			// happened that day.
			&rollup.NewLeads,
			`SELECT COUNT(*) FROM leads l
			 WHERE l.tenant_id = ? AND l.first_captured_at >= ? AND l.first_captured_at < ?
			   AND EXISTS (
				SELECT 1 FROM form_submissions fs
				WHERE fs.tenant_id = l.tenant_id AND fs.lead_id = l.id
				  AND fs.property_id = ?
				  AND fs.created_at >= ? AND fs.created_at < ?)`,
			[]interface{}{tenantID, windowStart, windowEnd, propertyID, windowStart, windowEnd},
		},
		{
			// Links attribute to a property through the linked visitor's
			// activity on it that day.
			&rollup.IdentityLinks,
			`SELECT COUNT(*) FROM lead_identities li
			 WHERE li.tenant_id = ? AND li.linked_at >= ? AND li.linked_at < ?
			   AND EXISTS (
				SELECT 1 FROM events e
				WHERE e.tenant_id = li.tenant_id AND e.visitor_id = li.visitor_id
				  AND e.property_id = ?
				  AND e.occurred_at >= ? AND e.occurred_at < ?)`,
			[]interface{}{tenantID, windowStart, windowEnd, propertyID, windowStart, windowEnd},
		},
	}

	for _, c := range counts {
		if err := p.store.conn.QueryRowContext(ctx, c.query, c.args...).Scan(c.target); err != nil {
			return nil, fmt.Errorf("failed aggregate query: %w", err)
		}
	}
	return rollup, nil
}

// computeIngestRollup runs the ingestion-health aggregates for one window.
func (p *PrivilegedStore) computeIngestRollup(ctx context.Context, tenantID, propertyID string, windowStart, windowEnd time.Time) (*models.DailyIngestRollup, error) {
	rollup := &models.DailyIngestRollup{TenantID: tenantID, PropertyID: propertyID}

	counts := []struct {
		target *int64
		query  string
	}{
		{
			&rollup.EventsAccepted,
			`SELECT COUNT(*) FROM events
			 WHERE tenant_id = ? AND property_id = ? AND occurred_at >= ? AND occurred_at < ?`,
		},
		{
			&rollup.EventsRejected,
			`SELECT COUNT(*) FROM ingest_rejections
			 WHERE tenant_id = ? AND property_id = ? AND occurred_at >= ? AND occurred_at < ?`,
		},
		{
			&rollup.LeadsCaptured,
			`SELECT COUNT(DISTINCT lead_id) FROM form_submissions
			 WHERE tenant_id = ? AND property_id = ? AND lead_id IS NOT NULL
			   AND created_at >= ? AND created_at < ?`,
		},
	}

	for _, c := range counts {
		if err := p.store.conn.QueryRowContext(ctx, c.query,
			tenantID, propertyID, windowStart, windowEnd).Scan(c.target); err != nil {
			return nil, fmt.Errorf("failed ingest aggregate query: %w", err)
		}
	}
	return rollup, nil
}

// RollupCell identifies one (tenant, property) pair eligible for a
// rollup run.
type RollupCell struct {
	TenantID   string
	PropertyID string
}

// ActiveCells returns the (tenant, property) pairs with any raw activity
// in the given day's UTC window. The scheduled aggregator iterates these
// instead of every tenant ever seen.
func (p *PrivilegedStore) ActiveCells(ctx context.Context, day time.Time) ([]RollupCell, error) {
	ctx, cancel := p.store.ensureContext(ctx)
	defer cancel()

	windowStart, windowEnd := DayWindow(day)

	query := `
		SELECT DISTINCT tenant_id, property_id FROM (
			SELECT tenant_id, property_id FROM events
			WHERE occurred_at >= ? AND occurred_at < ?
			UNION ALL
			SELECT tenant_id, property_id FROM form_submissions
			WHERE created_at >= ? AND created_at < ?
			UNION ALL
			SELECT tenant_id, property_id FROM ingest_rejections
			WHERE occurred_at >= ? AND occurred_at < ?
		)
		ORDER BY tenant_id, property_id`

	rows, err := p.store.conn.QueryContext(ctx, query,
		windowStart, windowEnd, windowStart, windowEnd, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query active cells: %w", err)
	}
	defer rows.Close()

	var cells []RollupCell
	for rows.Next() {
		var c RollupCell
		if err := rows.Scan(&c.TenantID, &c.PropertyID); err != nil {
			return nil, fmt.Errorf("failed to scan active cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// MetricRollupRange returns the metric rollup rows for [fromDay, toDay]
// inclusive, ordered by day. Reads are tenant-scoped.
func (t *TenantStore) MetricRollupRange(ctx context.Context, propertyID, fromDay, toDay string) ([]*models.DailyMetricRollup, error) {
	ctx, cancel := t.store.ensureContext(ctx)
	defer cancel()

	query := `
		SELECT tenant_id, property_id, day,
		       unique_visitors, page_views, sessions_started,
		       form_starts, form_submits, new_leads, identity_links,
		       computed_at
		FROM daily_metric_rollups
		WHERE tenant_id = ? AND property_id = ? AND day >= ? AND day <= ?
		ORDER BY day`

	rows, err := t.store.conn.QueryContext(ctx, query, t.tenantID, propertyID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric rollups: %w", err)
	}
	defer rows.Close()

	var rollups []*models.DailyMetricRollup
	for rows.Next() {
		r := &models.DailyMetricRollup{}
		if err := rows.Scan(
			&r.TenantID, &r.PropertyID, &r.Day,
			&r.UniqueVisitors, &r.PageViews, &r.SessionsStarted,
			&r.FormStarts, &r.FormSubmits, &r.NewLeads, &r.IdentityLinks,
			&r.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metric rollup: %w", err)
		}
		rollups = append(rollups, r)
	}
	return rollups, rows.Err()
}

// IngestRollupRange returns the ingest rollup rows for [fromDay, toDay]
// inclusive, ordered by day.
func (t *TenantStore) IngestRollupRange(ctx context.Context, propertyID, fromDay, toDay string) ([]*models.DailyIngestRollup, error) {
	ctx, cancel := t.store.ensureContext(ctx)
	defer cancel()

	query := `
		SELECT tenant_id, property_id, day,
		       events_accepted, events_rejected, leads_captured, computed_at
		FROM daily_ingest_rollups
		WHERE tenant_id = ? AND property_id = ? AND day >= ? AND day <= ?
		ORDER BY day`

	rows, err := t.store.conn.QueryContext(ctx, query, t.tenantID, propertyID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest rollups: %w", err)
	}
	defer rows.Close()

	var rollups []*models.DailyIngestRollup
	for rows.Next() {
		r := &models.DailyIngestRollup{}
		if err := rows.Scan(
			&r.TenantID, &r.PropertyID, &r.Day,
			&r.EventsAccepted, &r.EventsRejected, &r.LeadsCaptured, &r.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ingest rollup: %w", err)
		}
		rollups = append(rollups, r)
	}
	return rollups, rows.Err()
}
