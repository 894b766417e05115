// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/models"
)

// UpsertLead creates the lead for (tenant, email_normalized) or, when it
// already exists, advances last_captured_at. The returned flag reports
// whether the lead was newly created. Consent status is only seeded on
// insert; recapture never touches it (that is the consent ledger's job).
func (t *TenantTx) UpsertLead(ctx context.Context, emailNormalized, sourceChannel string, capturedAt time.Time) (*models.Lead, bool, error) {
	existing, err := t.LeadByEmail(ctx, emailNormalized)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	capturedAt = capturedAt.UTC()

	if existing != nil {
		query := `
			UPDATE leads
			SET last_captured_at = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ?`
		if _, err := t.tx.ExecContext(ctx, query, capturedAt, now, t.tenantID, existing.ID); err != nil {
			return nil, false, fmt.Errorf("failed to update lead capture: %w", err)
		}
		existing.LastCapturedAt = capturedAt
		existing.UpdatedAt = now
		return existing, false, nil
	}

	lead := &models.Lead{
		ID:              uuid.New(),
		TenantID:        t.tenantID,
		EmailNormalized: emailNormalized,
		ConsentStatus:   models.ConsentPending,
		SourceChannel:   sourceChannel,
		FirstCapturedAt: capturedAt,
		LastCapturedAt:  capturedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	query := `
		INSERT INTO leads (
			id, tenant_id, email_normalized, consent_status, source_channel,
			first_captured_at, last_captured_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := t.tx.ExecContext(ctx, query,
		lead.ID, lead.TenantID, lead.EmailNormalized, string(lead.ConsentStatus), lead.SourceChannel,
		lead.FirstCapturedAt, lead.LastCapturedAt, lead.CreatedAt, lead.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("failed to insert lead: %w", err)
	}
	return lead, true, nil
}

// LeadByEmail retrieves a lead by normalized email within the tenant.
func (t *TenantTx) LeadByEmail(ctx context.Context, emailNormalized string) (*models.Lead, error) {
	query := leadSelectColumns + ` WHERE tenant_id = ? AND email_normalized = ?`
	return scanLead(t.tx.QueryRowContext(ctx, query, t.tenantID, emailNormalized))
}

// LeadByID retrieves a lead by primary key within the tenant.
func (t *TenantTx) LeadByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	query := leadSelectColumns + ` WHERE tenant_id = ? AND id = ?`
	return scanLead(t.tx.QueryRowContext(ctx, query, t.tenantID, id))
}

// UpdateLeadConsent overwrites the lead's stored consent status.
func (t *TenantTx) UpdateLeadConsent(ctx context.Context, leadID uuid.UUID, status models.ConsentStatus) error {
	query := `
		UPDATE leads
		SET consent_status = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`
	if _, err := t.tx.ExecContext(ctx, query, string(status), time.Now().UTC(), t.tenantID, leadID); err != nil {
		return fmt.Errorf("failed to update lead consent: %w", err)
	}
	return nil
}

// DeleteLead removes a lead with its PII-scrubbing cascade: identity links
// are deleted, form submission payloads are nulled, then the lead row goes.
// Consent events are retained - they are append-only audit and carry only
// a hashed ip.
func (t *TenantTx) DeleteLead(ctx context.Context, leadID uuid.UUID) error {
	if _, err := t.LeadByID(ctx, leadID); err != nil {
		return err
	}

	steps := []struct {
		name  string
		query string
	}{
		{"delete identity links", `DELETE FROM lead_identities WHERE tenant_id = ? AND lead_id = ?`},
		{"scrub submissions", `UPDATE form_submissions SET payload = NULL WHERE tenant_id = ? AND lead_id = ?`},
		{"delete lead", `DELETE FROM leads WHERE tenant_id = ? AND id = ?`},
	}
	for _, step := range steps {
		if _, err := t.tx.ExecContext(ctx, step.query, t.tenantID, leadID); err != nil {
			return fmt.Errorf("failed to %s: %w", step.name, err)
		}
	}
	return nil
}

const leadSelectColumns = `
	SELECT id, tenant_id, email_normalized, consent_status, source_channel,
	       first_captured_at, last_captured_at, created_at, updated_at
	FROM leads`

// scanLead scans a single-row query into a Lead.
func scanLead(row *sql.Row) (*models.Lead, error) {
	l := &models.Lead{}
	var status string
	err := row.Scan(
		&l.ID, &l.TenantID, &l.EmailNormalized, &status, &l.SourceChannel,
		&l.FirstCapturedAt, &l.LastCapturedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}
	l.ConsentStatus = models.ConsentStatus(status)
	return l, nil
}
