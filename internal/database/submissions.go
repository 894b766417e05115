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

// InsertFormSubmission writes a form submission. Conflicting
// (tenant, dedupe_key) rows are dropped so retried captures stay
// idempotent; the return value reports whether a row was written.
func (t *TenantTx) InsertFormSubmission(ctx context.Context, sub *models.FormSubmission) (bool, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.TenantID = t.tenantID
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO form_submissions (
			id, tenant_id, property_id, lead_id, visitor_id,
			form_id, payload, dedupe_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, dedupe_key) DO NOTHING`

	res, err := t.tx.ExecContext(ctx, query,
		sub.ID, sub.TenantID, sub.PropertyID, nullableUUID(sub.LeadID), sub.VisitorID,
		sub.FormID, sub.Payload, sub.DedupeKey, sub.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert form submission: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read submission insert result: %w", err)
	}
	return inserted > 0, nil
}
