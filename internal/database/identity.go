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

// IdentityLinkOutcome reports what UpsertIdentityLink did.
type IdentityLinkOutcome int

const (
	// IdentityLinkUnchanged means an existing link already carried equal or
	// higher confidence; the call was a no-op.
	IdentityLinkUnchanged IdentityLinkOutcome = iota
	// IdentityLinkCreated means a new link row was inserted.
	IdentityLinkCreated
	// IdentityLinkUpgraded means an existing link's confidence was raised.
	IdentityLinkUpgraded
)

// UpsertIdentityLink creates or upgrades the link for (tenant, lead,
// visitor, source). Confidence is monotonically non-decreasing per tuple:
// a link attempt with lower confidence than the stored row is a no-op, so
// heuristic re-runs can never weaken a link established with better
// evidence. An upgrade also refreshes linked_at.
func (t *TenantTx) UpsertIdentityLink(ctx context.Context, leadID, visitorID uuid.UUID, source models.LinkSource, confidence float64) (IdentityLinkOutcome, error) {
	if err := models.ValidateConfidence(confidence); err != nil {
		return IdentityLinkUnchanged, err
	}
	if !source.Valid() {
		return IdentityLinkUnchanged, fmt.Errorf("unknown link source %q", source)
	}

	existing, err := t.identityLink(ctx, leadID, visitorID, source)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return IdentityLinkUnchanged, err
	}

	now := time.Now().UTC()

	if existing != nil {
		if existing.Confidence >= confidence {
			return IdentityLinkUnchanged, nil
		}
		query := `
			UPDATE lead_identities
			SET confidence = ?, linked_at = ?
			WHERE tenant_id = ? AND id = ?`
		if _, err := t.tx.ExecContext(ctx, query, confidence, now, t.tenantID, existing.ID); err != nil {
			return IdentityLinkUnchanged, fmt.Errorf("failed to upgrade identity link: %w", err)
		}
		return IdentityLinkUpgraded, nil
	}

	query := `
		INSERT INTO lead_identities (
			id, tenant_id, lead_id, visitor_id, link_source, confidence, linked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := t.tx.ExecContext(ctx, query,
		uuid.New(), t.tenantID, leadID, visitorID, string(source), confidence, now,
	); err != nil {
		return IdentityLinkUnchanged, fmt.Errorf("failed to insert identity link: %w", err)
	}
	return IdentityLinkCreated, nil
}

// identityLink fetches the link for (tenant, lead, visitor, source).
func (t *TenantTx) identityLink(ctx context.Context, leadID, visitorID uuid.UUID, source models.LinkSource) (*models.LeadIdentity, error) {
	query := `
		SELECT id, tenant_id, lead_id, visitor_id, link_source, confidence, linked_at
		FROM lead_identities
		WHERE tenant_id = ? AND lead_id = ? AND visitor_id = ? AND link_source = ?`

	row := t.tx.QueryRowContext(ctx, query, t.tenantID, leadID, visitorID, string(source))

	link := &models.LeadIdentity{}
	var src string
	err := row.Scan(&link.ID, &link.TenantID, &link.LeadID, &link.VisitorID, &src, &link.Confidence, &link.LinkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan identity link: %w", err)
	}
	link.LinkSource = models.LinkSource(src)
	return link, nil
}

// IdentityLinksByLead returns all links for a lead, strongest first.
func (t *TenantTx) IdentityLinksByLead(ctx context.Context, leadID uuid.UUID) ([]*models.LeadIdentity, error) {
	query := `
		SELECT id, tenant_id, lead_id, visitor_id, link_source, confidence, linked_at
		FROM lead_identities
		WHERE tenant_id = ? AND lead_id = ?
		ORDER BY confidence DESC, linked_at DESC`

	rows, err := t.tx.QueryContext(ctx, query, t.tenantID, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity links: %w", err)
	}
	defer rows.Close()

	var links []*models.LeadIdentity
	for rows.Next() {
		link := &models.LeadIdentity{}
		var src string
		if err := rows.Scan(&link.ID, &link.TenantID, &link.LeadID, &link.VisitorID, &src, &link.Confidence, &link.LinkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity link: %w", err)
		}
		link.LinkSource = models.LinkSource(src)
		links = append(links, link)
	}
	return links, rows.Err()
}
