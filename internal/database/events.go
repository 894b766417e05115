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

// InsertEvent writes a raw event. A conflicting (tenant, dedupe_key) is
// silently dropped via ON CONFLICT DO NOTHING so retried ingestion is
// idempotent; the return value reports whether a row was actually written.
func (t *TenantTx) InsertEvent(ctx context.Context, event *models.Event) (bool, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.TenantID = t.tenantID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO events (
			id, tenant_id, property_id, visitor_id, session_id,
			event_type, path, dedupe_key, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, dedupe_key) DO NOTHING`

	res, err := t.tx.ExecContext(ctx, query,
		event.ID, event.TenantID, event.PropertyID, event.VisitorID, nullableUUID(event.SessionID),
		event.EventType, event.Path, event.DedupeKey, event.OccurredAt.UTC(), event.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read event insert result: %w", err)
	}
	return inserted > 0, nil
}

// nullableUUID converts *uuid.UUID to a driver-friendly value.
func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
