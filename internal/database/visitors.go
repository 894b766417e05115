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

	"github.com/funnelgrid/funnelgrid/internal/metrics"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

// UpsertVisitor inserts the visitor for (tenant, anon_id) or, when the row
// already exists, overwrites its last-seen fields. Last write wins, keyed
// by the unique constraint and not by comparing timestamps: out-of-order
// delivery can move "last" backward, which is an accepted limitation.
//
// The atomic ON CONFLICT upsert is what lets concurrent writers racing on
// the same (tenant, anon_id) resolve to exactly one row without either
// caller seeing a uniqueness error.
func (t *TenantTx) UpsertVisitor(ctx context.Context, anonID string, occurredAt time.Time, reqCtx models.RequestContext) (*models.Visitor, error) {
	start := time.Now()
	now := time.Now().UTC()
	occurredAt = occurredAt.UTC()

	query := `
		INSERT INTO visitors (
			id, tenant_id, anon_id,
			first_seen_at, last_seen_at,
			first_ip_hash, last_ip_hash, first_ua_hash, last_ua_hash,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, anon_id) DO UPDATE SET
			last_seen_at = EXCLUDED.last_seen_at,
			last_ip_hash = EXCLUDED.last_ip_hash,
			last_ua_hash = EXCLUDED.last_ua_hash,
			updated_at = EXCLUDED.updated_at`

	_, err := t.tx.ExecContext(ctx, query,
		uuid.New(), t.tenantID, anonID,
		occurredAt, occurredAt,
		reqCtx.IPHash, reqCtx.IPHash, reqCtx.UAHash, reqCtx.UAHash,
		now, now,
	)
	metrics.ObserveDBQuery("upsert", "visitors", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert visitor: %w", err)
	}

	return t.VisitorByAnonID(ctx, anonID)
}

// VisitorByAnonID retrieves the visitor for (tenant, anon_id).
// Returns ErrNotFound when no row matches.
func (t *TenantTx) VisitorByAnonID(ctx context.Context, anonID string) (*models.Visitor, error) {
	query := visitorSelectColumns + ` WHERE tenant_id = ? AND anon_id = ?`
	return scanVisitor(t.tx.QueryRowContext(ctx, query, t.tenantID, anonID))
}

// VisitorByID retrieves a visitor by primary key within the tenant.
func (t *TenantTx) VisitorByID(ctx context.Context, id uuid.UUID) (*models.Visitor, error) {
	query := visitorSelectColumns + ` WHERE tenant_id = ? AND id = ?`
	return scanVisitor(t.tx.QueryRowContext(ctx, query, t.tenantID, id))
}

// HeuristicCandidates returns visitors sharing the exact (last_ip_hash,
// last_ua_hash) fingerprint that were last seen at or after cutoff,
// excluding the primary visitor, most recently seen first, capped to limit.
func (t *TenantTx) HeuristicCandidates(ctx context.Context, primaryVisitorID uuid.UUID, ipHash, uaHash string, cutoff time.Time, limit int) ([]*models.Visitor, error) {
	query := visitorSelectColumns + `
		WHERE tenant_id = ?
		  AND last_ip_hash = ?
		  AND last_ua_hash = ?
		  AND id <> ?
		  AND last_seen_at >= ?
		ORDER BY last_seen_at DESC
		LIMIT ?`

	rows, err := t.tx.QueryContext(ctx, query,
		t.tenantID, ipHash, uaHash, primaryVisitorID, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query heuristic candidates: %w", err)
	}
	defer rows.Close()

	var visitors []*models.Visitor
	for rows.Next() {
		visitor, err := scanVisitorFromRows(rows)
		if err != nil {
			return nil, err
		}
		visitors = append(visitors, visitor)
	}
	return visitors, rows.Err()
}

const visitorSelectColumns = `
	SELECT id, tenant_id, anon_id,
	       first_seen_at, last_seen_at,
	       first_ip_hash, last_ip_hash, first_ua_hash, last_ua_hash,
	       created_at, updated_at
	FROM visitors`

// scanVisitor scans a single-row query into a Visitor.
func scanVisitor(row *sql.Row) (*models.Visitor, error) {
	v := &models.Visitor{}
	err := row.Scan(
		&v.ID, &v.TenantID, &v.AnonID,
		&v.FirstSeenAt, &v.LastSeenAt,
		&v.FirstIPHash, &v.LastIPHash, &v.FirstUAHash, &v.LastUAHash,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan visitor: %w", err)
	}
	return v, nil
}

// scanVisitorFromRows scans the current row of a multi-row result.
func scanVisitorFromRows(rows *sql.Rows) (*models.Visitor, error) {
	v := &models.Visitor{}
	err := rows.Scan(
		&v.ID, &v.TenantID, &v.AnonID,
		&v.FirstSeenAt, &v.LastSeenAt,
		&v.FirstIPHash, &v.LastIPHash, &v.FirstUAHash, &v.LastUAHash,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan visitor: %w", err)
	}
	return v, nil
}
