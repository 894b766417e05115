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

// RecordIngestRejection writes a rejection row. It lives on the
// privileged handle because rejections happen before a tenant transaction
// opens (the request failed validation), and must not be lost when the
// request aborts.
func (p *PrivilegedStore) RecordIngestRejection(ctx context.Context, rejection *models.IngestRejection) error {
	ctx, cancel := p.store.ensureContext(ctx)
	defer cancel()

	if rejection.ID == uuid.Nil {
		rejection.ID = uuid.New()
	}
	if rejection.OccurredAt.IsZero() {
		rejection.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO ingest_rejections (id, tenant_id, property_id, reason, occurred_at)
		VALUES (?, ?, ?, ?, ?)`

	if _, err := p.store.conn.ExecContext(ctx, query,
		rejection.ID, rejection.TenantID, rejection.PropertyID,
		rejection.Reason, rejection.OccurredAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to record ingest rejection: %w", err)
	}
	return nil
}
