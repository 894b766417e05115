// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConsentStatus is the consent state stored on a lead.
type ConsentStatus string

const (
	ConsentPending   ConsentStatus = "pending"
	ConsentExpress   ConsentStatus = "express"
	ConsentImplied   ConsentStatus = "implied"
	ConsentWithdrawn ConsentStatus = "withdrawn"
)

// Valid reports whether the status is one of the known values.
// The switch is exhaustive on purpose: adding a status without updating
// every switch over ConsentStatus is a compile-time/lint-time find.
func (s ConsentStatus) Valid() bool {
	switch s {
	case ConsentPending, ConsentExpress, ConsentImplied, ConsentWithdrawn:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions at
// the lead level. Withdrawn is terminal: later applications still append
// to the audit trail but never move the stored status out of withdrawn.
func (s ConsentStatus) Terminal() bool {
	return s == ConsentWithdrawn
}

// LinkSource is the provenance of a lead-visitor identity link.
type LinkSource string

const (
	// LinkSourceFormSubmit is the deterministic link created when a form
	// submission binds an email to the submitting visitor.
	LinkSourceFormSubmit LinkSource = "form_submit"

	// LinkSourceSameIPUAWindow is the heuristic link for visitors sharing
	// the primary visitor's network/device fingerprint within the window.
	LinkSourceSameIPUAWindow LinkSource = "same_ip_ua_window"

	// LinkSourceManualMerge is an operator-initiated merge.
	LinkSourceManualMerge LinkSource = "manual_merge"
)

// Valid reports whether the source is one of the known values.
func (s LinkSource) Valid() bool {
	switch s {
	case LinkSourceFormSubmit, LinkSourceSameIPUAWindow, LinkSourceManualMerge:
		return true
	}
	return false
}

// Lead is an identified contact, unique per tenant by normalized email.
type Lead struct {
	ID              uuid.UUID     `json:"id"`
	TenantID        string        `json:"tenantId"`
	EmailNormalized string        `json:"emailNormalized"`
	ConsentStatus   ConsentStatus `json:"consentStatus"`
	SourceChannel   string        `json:"sourceChannel"`
	FirstCapturedAt time.Time     `json:"firstCapturedAt"`
	LastCapturedAt  time.Time     `json:"lastCapturedAt"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// LeadIdentity links a lead to a visitor with explicit provenance and a
// confidence in [0,1]. (tenant, lead, visitor, source) is unique and
// confidence is monotonically non-decreasing per tuple.
type LeadIdentity struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   string     `json:"tenantId"`
	LeadID     uuid.UUID  `json:"leadId"`
	VisitorID  uuid.UUID  `json:"visitorId"`
	LinkSource LinkSource `json:"linkSource"`
	Confidence float64    `json:"confidence"`
	LinkedAt   time.Time  `json:"linkedAt"`
}

// ValidateConfidence rejects confidences outside [0,1] before any
// transaction is opened.
func ValidateConfidence(confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", confidence)
	}
	return nil
}

// ConsentEvent is one immutable row of the consent audit trail. Every
// application attempt is recorded with its resulting status, even when
// the stored status did not change. Never updated or deleted.
type ConsentEvent struct {
	ID         uuid.UUID     `json:"id"`
	TenantID   string        `json:"tenantId"`
	LeadID     uuid.UUID     `json:"leadId"`
	Status     ConsentStatus `json:"status"`
	Source     string        `json:"source"`
	IPHash     *string       `json:"ipHash,omitempty"`
	RecordedAt time.Time     `json:"recordedAt"`
}

// FormSubmission records one lead-capture form submission. Unique per
// tenant by dedupe key so retried submissions are idempotent. Payload
// fields are nulled by the PII scrub cascade when the lead is deleted.
type FormSubmission struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   string     `json:"tenantId"`
	PropertyID string     `json:"propertyId"`
	LeadID     *uuid.UUID `json:"leadId,omitempty"`
	VisitorID  uuid.UUID  `json:"visitorId"`
	FormID     string     `json:"formId"`
	Payload    *string    `json:"payload,omitempty"`
	DedupeKey  string     `json:"dedupeKey"`
	CreatedAt  time.Time  `json:"createdAt"`
}
