// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/funnelgrid/funnelgrid/internal/logging"
)

// PurgeResult reports what a retention purge removed.
type PurgeResult struct {
	Events     int64 `json:"events"`
	Sessions   int64 `json:"sessions"`
	Visitors   int64 `json:"visitors"`
	Rejections int64 `json:"rejections"`
}

// Total returns the number of rows removed across all tables.
func (r PurgeResult) Total() int64 {
	return r.Events + r.Sessions + r.Visitors + r.Rejections
}

// PurgeExpired deletes raw behavioral data older than the retention
// cutoff, across all tenants. Rollup rows are kept: aggregates outlive
// the raw rows they were computed from. Visitors with an identity link
// are kept regardless of age so links never dangle; they leave the
// system only through lead deletion.
func (p *PrivilegedStore) PurgeExpired(ctx context.Context, retentionDays int) (*PurgeResult, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	ctx, cancel := p.store.ensureContext(ctx)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result := &PurgeResult{}

	deletes := []struct {
		target *int64
		label  string
		query  string
	}{
		{
			&result.Events, "events",
			`DELETE FROM events WHERE occurred_at < ?`,
		},
		{
			&result.Sessions, "sessions",
			`DELETE FROM sessions WHERE last_event_at < ?`,
		},
		{
			&result.Rejections, "ingest_rejections",
			`DELETE FROM ingest_rejections WHERE occurred_at < ?`,
		},
		{
			&result.Visitors, "visitors",
			`DELETE FROM visitors
			 WHERE last_seen_at < ?
			   AND NOT EXISTS (
				SELECT 1 FROM lead_identities li
				WHERE li.tenant_id = visitors.tenant_id AND li.visitor_id = visitors.id)`,
		},
	}

	for _, d := range deletes {
		res, err := p.store.conn.ExecContext(ctx, d.query, cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to purge %s: %w", d.label, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			*d.target = n
		}
	}

	logging.Info().
		Time("cutoff", cutoff).
		Int64("events", result.Events).
		Int64("sessions", result.Sessions).
		Int64("visitors", result.Visitors).
		Int64("rejections", result.Rejections).
		Msg("Retention purge complete")
	return result, nil
}
