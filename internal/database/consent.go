// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/models"
)

// InsertConsentEvent appends one immutable row to the consent audit trail.
// There is deliberately no update or delete counterpart.
func (t *TenantTx) InsertConsentEvent(ctx context.Context, event *models.ConsentEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.TenantID = t.tenantID
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO consent_events (
			id, tenant_id, lead_id, status, source, ip_hash, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := t.tx.ExecContext(ctx, query,
		event.ID, event.TenantID, event.LeadID, string(event.Status),
		event.Source, event.IPHash, event.RecordedAt,
	); err != nil {
		return fmt.Errorf("failed to insert consent event: %w", err)
	}
	return nil
}

// ConsentEventsByLead returns the lead's audit trail, oldest first.
func (t *TenantTx) ConsentEventsByLead(ctx context.Context, leadID uuid.UUID) ([]*models.ConsentEvent, error) {
	query := `
		SELECT id, tenant_id, lead_id, status, source, ip_hash, recorded_at
		FROM consent_events
		WHERE tenant_id = ? AND lead_id = ?
		ORDER BY recorded_at`

	rows, err := t.tx.QueryContext(ctx, query, t.tenantID, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consent events: %w", err)
	}
	defer rows.Close()

	var events []*models.ConsentEvent
	for rows.Next() {
		event := &models.ConsentEvent{}
		var status string
		if err := rows.Scan(&event.ID, &event.TenantID, &event.LeadID, &status,
			&event.Source, &event.IPHash, &event.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan consent event: %w", err)
		}
		event.Status = models.ConsentStatus(status)
		events = append(events, event)
	}
	return events, rows.Err()
}
