// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package ingest composes attribution, identity linking and consent into
// one tenant transaction per inbound request. The orchestrators here are
// the integration point: thin, but they own the transaction boundary and
// the rejection path.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/attribution"
	"github.com/funnelgrid/funnelgrid/internal/consent"
	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/identity"
	"github.com/funnelgrid/funnelgrid/internal/logging"
	"github.com/funnelgrid/funnelgrid/internal/metrics"
	"github.com/funnelgrid/funnelgrid/internal/models"
	"github.com/funnelgrid/funnelgrid/internal/validation"
)

// Service orchestrates event ingestion and lead capture.
type Service struct {
	store             *database.Store
	attribution       *attribution.Engine
	linker            *identity.Linker
	ledger            *consent.Ledger
	defaultPropertyID string
}

// NewService wires the orchestrator.
func NewService(store *database.Store, engine *attribution.Engine, linker *identity.Linker, ledger *consent.Ledger, defaultPropertyID string) *Service {
	return &Service{
		store:             store,
		attribution:       engine,
		linker:            linker,
		ledger:            ledger,
		defaultPropertyID: defaultPropertyID,
	}
}

// EventInput is one inbound event item.
type EventInput struct {
	AnonID     string     `json:"anonId" validate:"required,min=8"`
	PropertyID string     `json:"propertyId"`
	EventType  string     `json:"eventType" validate:"required,max=64"`
	DedupeKey  string     `json:"dedupeKey" validate:"required,max=256"`
	OccurredAt time.Time  `json:"occurredAt" validate:"required"`
	Path       *string    `json:"path,omitempty"`
	Referrer   *string    `json:"referrer,omitempty"`
	UTM        models.UTM `json:"utm"`
}

// EventBatchResult reports what one ingest request did.
type EventBatchResult struct {
	Accepted int `json:"accepted"`
	Deduped  int `json:"deduped"`
	Rejected int `json:"rejected"`
}

// IngestEvents validates the batch, then processes every valid item in
// one all-or-nothing tenant transaction. Invalid items never enter the
// transaction; they are recorded as rejections on the privileged handle
// so the events_rejected rollup sees them even though the request path
// wrote nothing.
func (s *Service) IngestEvents(ctx context.Context, tenantID string, reqCtx models.RequestContext, events []EventInput) (*EventBatchResult, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("event batch is empty")
	}

	result := &EventBatchResult{}
	valid := make([]EventInput, 0, len(events))
	for _, event := range events {
		if err := validation.ValidateStruct(&event); err != nil {
			s.recordRejection(ctx, tenantID, s.propertyID(event.PropertyID), err.Error())
			result.Rejected++
			continue
		}
		valid = append(valid, event)
	}

	if len(valid) == 0 {
		return result, nil
	}

	err := s.store.Tenant(tenantID).WithTx(ctx, func(tx *database.TenantTx) error {
		for _, event := range valid {
			accepted, err := s.ingestOne(ctx, tx, event, reqCtx)
			if err != nil {
				return err
			}
			if accepted {
				result.Accepted++
			} else {
				result.Deduped++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ingest events: %w", err)
	}

	metrics.IngestEventsAccepted.WithLabelValues(tenantID, s.propertyID(valid[0].PropertyID)).
		Add(float64(result.Accepted))
	return result, nil
}

// ingestOne resolves attribution for one event and persists it.
func (s *Service) ingestOne(ctx context.Context, tx *database.TenantTx, event EventInput, reqCtx models.RequestContext) (bool, error) {
	resolved, err := s.attribution.Resolve(ctx, tx, attribution.Input{
		AnonID:     event.AnonID,
		PropertyID: s.propertyID(event.PropertyID),
		OccurredAt: event.OccurredAt,
		Request:    reqCtx,
		Path:       event.Path,
		Referrer:   event.Referrer,
		UTM:        event.UTM,
	})
	if err != nil {
		return false, err
	}

	sessionID := resolved.Session.ID
	inserted, err := tx.InsertEvent(ctx, &models.Event{
		PropertyID: s.propertyID(event.PropertyID),
		VisitorID:  resolved.Visitor.ID,
		SessionID:  &sessionID,
		EventType:  event.EventType,
		Path:       event.Path,
		DedupeKey:  event.DedupeKey,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// LeadInput is one inbound lead-capture request.
type LeadInput struct {
	Email         string     `json:"email" validate:"required,email"`
	AnonID        string     `json:"anonId" validate:"required,min=8"`
	PropertyID    string     `json:"propertyId"`
	FormID        string     `json:"formId" validate:"required,max=128"`
	DedupeKey     string     `json:"dedupeKey" validate:"required,max=256"`
	OccurredAt    time.Time  `json:"occurredAt" validate:"required"`
	ConsentStatus string     `json:"consentStatus,omitempty" validate:"omitempty,consentstatus"`
	Payload       *string    `json:"payload,omitempty"`
	Path          *string    `json:"path,omitempty"`
	Referrer      *string    `json:"referrer,omitempty"`
	UTM           models.UTM `json:"utm"`
}

// LeadResult reports what one capture request did.
type LeadResult struct {
	LeadID              string `json:"leadId"`
	Created             bool   `json:"created"`
	Submitted           bool   `json:"submitted"`
	HeuristicCandidates int    `json:"heuristicCandidates"`
}

// CaptureLead runs the full lead path in one tenant transaction:
// attribution, lead upsert, submission record, explicit identity link,
// heuristic linking, and the optional consent application.
func (s *Service) CaptureLead(ctx context.Context, tenantID string, reqCtx models.RequestContext, input LeadInput) (*LeadResult, error) {
	if err := validation.ValidateStruct(&input); err != nil {
		s.recordRejection(ctx, tenantID, s.propertyID(input.PropertyID), err.Error())
		return nil, err
	}

	email := NormalizeEmail(input.Email)
	propertyID := s.propertyID(input.PropertyID)
	result := &LeadResult{}

	err := s.store.Tenant(tenantID).WithTx(ctx, func(tx *database.TenantTx) error {
		resolved, err := s.attribution.Resolve(ctx, tx, attribution.Input{
			AnonID:     input.AnonID,
			PropertyID: propertyID,
			OccurredAt: input.OccurredAt,
			Request:    reqCtx,
			Path:       input.Path,
			Referrer:   input.Referrer,
			UTM:        input.UTM,
		})
		if err != nil {
			return err
		}

		lead, created, err := tx.UpsertLead(ctx, email, "web_form", input.OccurredAt)
		if err != nil {
			return err
		}
		result.LeadID = lead.ID.String()
		result.Created = created

		leadID := lead.ID
		submitted, err := tx.InsertFormSubmission(ctx, &models.FormSubmission{
			PropertyID: propertyID,
			LeadID:     &leadID,
			VisitorID:  resolved.Visitor.ID,
			FormID:     input.FormID,
			Payload:    input.Payload,
			DedupeKey:  input.DedupeKey,
			CreatedAt:  input.OccurredAt.UTC(),
		})
		if err != nil {
			return err
		}
		result.Submitted = submitted

		// A submission deterministically binds the email to this visitor.
		if err := s.linker.LinkLeadToVisitor(ctx, tx,
			lead.ID, resolved.Visitor.ID, models.LinkSourceFormSubmit, identity.ExplicitLinkConfidence); err != nil {
			return err
		}

		processed, err := s.linker.LinkHeuristicVisitors(ctx, tx,
			lead.ID, resolved.Visitor.ID, reqCtx.IPHash, reqCtx.UAHash, input.OccurredAt)
		if err != nil {
			return err
		}
		result.HeuristicCandidates = processed

		if input.ConsentStatus != "" {
			ipHash := reqCtx.IPHash
			current := lead.ConsentStatus
			return s.ledger.ApplyConsentStatus(ctx, tx, consent.Apply{
				LeadID:        lead.ID,
				NextStatus:    models.ConsentStatus(input.ConsentStatus),
				Source:        "form:" + input.FormID,
				IPHash:        &ipHash,
				CurrentStatus: &current,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture lead: %w", err)
	}

	outcome := "recaptured"
	if result.Created {
		outcome = "created"
	}
	metrics.IngestLeadsCaptured.WithLabelValues(tenantID, outcome).Inc()
	return result, nil
}

// ApplyConsent runs one standalone consent application (the POST /consent
// path) in its own transaction.
func (s *Service) ApplyConsent(ctx context.Context, tenantID string, apply consent.Apply) error {
	err := s.store.Tenant(tenantID).WithTx(ctx, func(tx *database.TenantTx) error {
		return s.ledger.ApplyConsentStatus(ctx, tx, apply)
	})
	if err != nil {
		return fmt.Errorf("failed to apply consent: %w", err)
	}
	return nil
}

// DeleteLead removes a lead with its PII scrub cascade.
func (s *Service) DeleteLead(ctx context.Context, tenantID string, leadID string) error {
	id, err := parseUUID(leadID)
	if err != nil {
		return err
	}
	return s.store.Tenant(tenantID).WithTx(ctx, func(tx *database.TenantTx) error {
		return tx.DeleteLead(ctx, id)
	})
}

// parseUUID wraps uuid parsing with a caller-friendly error.
func parseUUID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", value, err)
	}
	return id, nil
}

// recordRejection writes the rejection row outside any request
// transaction and bumps the rejection counter.
func (s *Service) recordRejection(ctx context.Context, tenantID, propertyID, reason string) {
	metrics.IngestEventsRejected.WithLabelValues(tenantID, "validation").Inc()
	if err := s.store.Privileged().RecordIngestRejection(ctx, &models.IngestRejection{
		TenantID:   tenantID,
		PropertyID: propertyID,
		Reason:     reason,
	}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record ingest rejection")
	}
}

// propertyID falls back to the configured default property.
func (s *Service) propertyID(requested string) string {
	if strings.TrimSpace(requested) == "" {
		return s.defaultPropertyID
	}
	return requested
}

// NormalizeEmail canonicalizes an email for the per-tenant unique key:
// trimmed and lowercased. No plus-suffix or dot stripping; two spellings
// a provider treats as one mailbox are still two leads here.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
