// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package models defines the data structures shared across Funnelgrid:
// visitors, sessions, raw events, leads, identity links, consent events,
// and the pre-aggregated daily rollup rows served to the dashboard.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Visitor represents an anonymous browser/device, identified per tenant by
// a client-generated anonymous ID. Created on the first event carrying a
// new anon ID; last-seen fields are overwritten on every subsequent event.
//
// IP addresses and user agents are never stored raw - only salted hashes
// derived at the request boundary (see internal/requestctx).
type Visitor struct {
	ID          uuid.UUID `json:"id"`
	TenantID    string    `json:"tenantId"`
	AnonID      string    `json:"anonId"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	FirstIPHash string    `json:"firstIpHash"`
	LastIPHash  string    `json:"lastIpHash"`
	FirstUAHash string    `json:"firstUaHash"`
	LastUAHash  string    `json:"lastUaHash"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Session is a bounded visit by one visitor. EndedAt is null while the
// session is open and is set to the last observed activity when the
// session closes.
//
// Landing path, referrer and UTM fields are seeded from the event that
// opened the session and never mutated afterwards.
type Session struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    string     `json:"tenantId"`
	VisitorID   uuid.UUID  `json:"visitorId"`
	PropertyID  string     `json:"propertyId"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	LastEventAt time.Time  `json:"lastEventAt"`
	LandingPath *string    `json:"landingPath,omitempty"`
	Referrer    *string    `json:"referrer,omitempty"`
	UTMSource   *string    `json:"utmSource,omitempty"`
	UTMMedium   *string    `json:"utmMedium,omitempty"`
	UTMCampaign *string    `json:"utmCampaign,omitempty"`
	UTMTerm     *string    `json:"utmTerm,omitempty"`
	UTMContent  *string    `json:"utmContent,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}

// Event is a raw traffic/interaction record. Immutable once written.
// DedupeKey makes retried ingestion idempotent: (tenant_id, dedupe_key)
// is unique and a conflicting insert is silently dropped.
type Event struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   string     `json:"tenantId"`
	PropertyID string     `json:"propertyId"`
	VisitorID  uuid.UUID  `json:"visitorId"`
	SessionID  *uuid.UUID `json:"sessionId,omitempty"`
	EventType  string     `json:"eventType"`
	Path       *string    `json:"path,omitempty"`
	DedupeKey  string     `json:"dedupeKey"`
	OccurredAt time.Time  `json:"occurredAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Event types recorded by the ingest pipeline. Arbitrary custom types are
// accepted; these are the ones the rollup aggregator counts explicitly.
const (
	EventTypePageView  = "page_view"
	EventTypeFormStart = "form_start"
)

// UTM carries the five marketing attribution parameters from the URL.
// Empty strings mean "not present"; normalization (trim, empty-to-null)
// happens in the attribution engine, not here.
type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// RequestContext is the privacy-preserving request fingerprint derived at
// the HTTP boundary: salted hashes of the client IP and user agent.
type RequestContext struct {
	IPHash string `json:"ipHash"`
	UAHash string `json:"uaHash"`
}

// IngestRejection records an inbound item the ingest boundary refused
// (schema/validation failure), feeding the events_rejected rollup counter.
type IngestRejection struct {
	ID         uuid.UUID `json:"id"`
	TenantID   string    `json:"tenantId"`
	PropertyID string    `json:"propertyId"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}
