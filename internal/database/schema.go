// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

/*
schema.go - Database Schema Management

Tables:
  - visitors: anonymous browser/device records, unique per (tenant, anon_id)
  - sessions: bounded visits owned by a visitor; ended_at NULL while open
  - events: immutable raw traffic records, deduplicated per (tenant, dedupe_key)
  - leads: identified contacts, unique per (tenant, email_normalized)
  - lead_identities: lead<->visitor links, unique per (tenant, lead, visitor, source)
  - consent_events: append-only consent audit trail
  - form_submissions: lead-capture submissions, deduplicated per (tenant, dedupe_key)
  - ingest_rejections: inbound items refused at the ingest boundary
  - daily_metric_rollups / daily_ingest_rollups: derived aggregates keyed by
    (tenant, property, UTC day); upserted, never hand-edited

All columns are defined in the initial CREATE TABLE statements: single
source of truth, no migrations to run at startup.

Every unique constraint above doubles as an ON CONFLICT target, which is
how concurrent writers racing on the same logical row resolve to exactly
one row without either of them seeing a uniqueness error.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (s *Store) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// tableCreationQueries returns the table creation SQL statements.
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS visitors (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			anon_id TEXT NOT NULL,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			first_ip_hash TEXT NOT NULL,
			last_ip_hash TEXT NOT NULL,
			first_ua_hash TEXT NOT NULL,
			last_ua_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, anon_id)
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			visitor_id UUID NOT NULL,
			property_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			last_event_at TIMESTAMP NOT NULL,
			landing_path TEXT,
			referrer TEXT,
			utm_source TEXT,
			utm_medium TEXT,
			utm_campaign TEXT,
			utm_term TEXT,
			utm_content TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			property_id TEXT NOT NULL,
			visitor_id UUID NOT NULL,
			session_id UUID,
			event_type TEXT NOT NULL,
			path TEXT,
			dedupe_key TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, dedupe_key)
		)`,

		`CREATE TABLE IF NOT EXISTS leads (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			email_normalized TEXT NOT NULL,
			consent_status TEXT NOT NULL,
			source_channel TEXT NOT NULL,
			first_captured_at TIMESTAMP NOT NULL,
			last_captured_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, email_normalized)
		)`,

		`CREATE TABLE IF NOT EXISTS lead_identities (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			lead_id UUID NOT NULL,
			visitor_id UUID NOT NULL,
			link_source TEXT NOT NULL,
			confidence DOUBLE NOT NULL,
			linked_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, lead_id, visitor_id, link_source)
		)`,

		`CREATE TABLE IF NOT EXISTS consent_events (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			lead_id UUID NOT NULL,
			status TEXT NOT NULL,
			source TEXT NOT NULL,
			ip_hash TEXT,
			recorded_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS form_submissions (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			property_id TEXT NOT NULL,
			lead_id UUID,
			visitor_id UUID NOT NULL,
			form_id TEXT NOT NULL,
			payload TEXT,
			dedupe_key TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, dedupe_key)
		)`,

		`CREATE TABLE IF NOT EXISTS ingest_rejections (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			property_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS daily_metric_rollups (
			tenant_id TEXT NOT NULL,
			property_id TEXT NOT NULL,
			day TEXT NOT NULL,
			unique_visitors BIGINT NOT NULL,
			page_views BIGINT NOT NULL,
			sessions_started BIGINT NOT NULL,
			form_starts BIGINT NOT NULL,
			form_submits BIGINT NOT NULL,
			new_leads BIGINT NOT NULL,
			identity_links BIGINT NOT NULL,
			computed_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, property_id, day)
		)`,

		`CREATE TABLE IF NOT EXISTS daily_ingest_rollups (
			tenant_id TEXT NOT NULL,
			property_id TEXT NOT NULL,
			day TEXT NOT NULL,
			events_accepted BIGINT NOT NULL,
			events_rejected BIGINT NOT NULL,
			leads_captured BIGINT NOT NULL,
			computed_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, property_id, day)
		)`,
	}
}

// createIndexes creates indexes for the hot query paths.
func (s *Store) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		// Attribution: latest-session lookup per visitor
		`CREATE INDEX IF NOT EXISTS idx_sessions_visitor_started
			ON sessions (tenant_id, visitor_id, started_at)`,
		// Heuristic linking: fingerprint scan bounded by last_seen_at
		`CREATE INDEX IF NOT EXISTS idx_visitors_fingerprint
			ON visitors (tenant_id, last_ip_hash, last_ua_hash, last_seen_at)`,
		// Rollups: day-window scans per property
		`CREATE INDEX IF NOT EXISTS idx_events_window
			ON events (tenant_id, property_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_window
			ON sessions (tenant_id, property_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_window
			ON leads (tenant_id, first_captured_at)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_window
			ON form_submissions (tenant_id, property_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_rejections_window
			ON ingest_rejections (tenant_id, property_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_identities_window
			ON lead_identities (tenant_id, linked_at)`,
		// Consent audit reads per lead
		`CREATE INDEX IF NOT EXISTS idx_consent_events_lead
			ON consent_events (tenant_id, lead_id, recorded_at)`,
	}

	for _, index := range indexes {
		if _, err := s.conn.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", index, err)
		}
	}
	return nil
}
