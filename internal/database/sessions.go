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

// LatestSessionByVisitor returns the visitor's most recent session by
// started_at, or ErrNotFound when the visitor has none.
func (t *TenantTx) LatestSessionByVisitor(ctx context.Context, visitorID uuid.UUID) (*models.Session, error) {
	query := sessionSelectColumns + `
		WHERE tenant_id = ? AND visitor_id = ?
		ORDER BY started_at DESC
		LIMIT 1`
	return scanSession(t.tx.QueryRowContext(ctx, query, t.tenantID, visitorID))
}

// InsertSession persists a new session. ID, timestamps and tenant id are
// filled in here; attribution fields come from the caller as-is.
func (t *TenantTx) InsertSession(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.TenantID = t.tenantID
	session.CreatedAt = now
	session.UpdatedAt = now

	query := `
		INSERT INTO sessions (
			id, tenant_id, visitor_id, property_id,
			started_at, ended_at, last_event_at,
			landing_path, referrer,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.tx.ExecContext(ctx, query,
		session.ID, session.TenantID, session.VisitorID, session.PropertyID,
		session.StartedAt.UTC(), nullableTime(session.EndedAt), session.LastEventAt.UTC(),
		session.LandingPath, session.Referrer,
		session.UTMSource, session.UTMMedium, session.UTMCampaign, session.UTMTerm, session.UTMContent,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// TouchSession records continued activity on an open session: last_event_at
// moves to occurredAt. Attribution fields are never mutated on
// continuation, and ended_at stays NULL until CloseSession finalizes it.
func (t *TenantTx) TouchSession(ctx context.Context, sessionID uuid.UUID, occurredAt time.Time) error {
	query := `
		UPDATE sessions
		SET last_event_at = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND ended_at IS NULL`

	res, err := t.tx.ExecContext(ctx, query,
		occurredAt.UTC(), time.Now().UTC(), t.tenantID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to touch session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// CloseSession finalizes an open session, setting ended_at to the
// session's own last_event_at - its end is its last observed activity,
// not the moment the engine noticed it ended. Closing an already-closed
// session is a no-op.
func (t *TenantTx) CloseSession(ctx context.Context, sessionID uuid.UUID) error {
	query := `
		UPDATE sessions
		SET ended_at = last_event_at, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND ended_at IS NULL`

	if _, err := t.tx.ExecContext(ctx, query, time.Now().UTC(), t.tenantID, sessionID); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

const sessionSelectColumns = `
	SELECT id, tenant_id, visitor_id, property_id,
	       started_at, ended_at, last_event_at,
	       landing_path, referrer,
	       utm_source, utm_medium, utm_campaign, utm_term, utm_content,
	       created_at, updated_at
	FROM sessions`

// scanSession scans a single-row query into a Session.
func scanSession(row *sql.Row) (*models.Session, error) {
	s := &models.Session{}
	var endedAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.TenantID, &s.VisitorID, &s.PropertyID,
		&s.StartedAt, &endedAt, &s.LastEventAt,
		&s.LandingPath, &s.Referrer,
		&s.UTMSource, &s.UTMMedium, &s.UTMCampaign, &s.UTMTerm, &s.UTMContent,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	if endedAt.Valid {
		ended := endedAt.Time
		s.EndedAt = &ended
	}
	return s, nil
}

// nullableTime converts *time.Time to a driver-friendly value in UTC.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
