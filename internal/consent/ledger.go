// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package consent maintains each lead's stored consent status and its
// append-only audit trail. Every application attempt is recorded with the
// resulting status, even when nothing changed - the trail answers "what
// was asserted and when", not just "what changed".
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/logging"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

// Ledger applies consent status changes inside the caller's transaction.
type Ledger struct{}

// NewLedger creates a consent ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Apply carries one consent application attempt.
type Apply struct {
	LeadID     uuid.UUID
	NextStatus models.ConsentStatus
	Source     string
	IPHash     *string
	// CurrentStatus short-circuits the re-fetch when the caller already
	// holds the lead row. Nil means fetch from storage.
	CurrentStatus *models.ConsentStatus
}

// ApplyConsentStatus resolves the lead's current status and moves it to
// NextStatus when they differ, appending an audit row either way.
//
// Two deliberate policies:
//   - a missing lead is a silent no-op with no audit row - stale
//     references (deleted leads, replayed requests) must not error or
//     pollute the trail;
//   - withdrawn is terminal at the lead level: once stored, no later
//     application moves it, but the attempt is still audited.
func (l *Ledger) ApplyConsentStatus(ctx context.Context, tx *database.TenantTx, apply Apply) error {
	if !apply.NextStatus.Valid() {
		return fmt.Errorf("unknown consent status %q", apply.NextStatus)
	}

	current := apply.CurrentStatus
	if current == nil {
		lead, err := tx.LeadByID(ctx, apply.LeadID)
		if errors.Is(err, database.ErrNotFound) {
			logging.Ctx(ctx).Debug().
				Str("lead_id", apply.LeadID.String()).
				Msg("Consent application for unknown lead skipped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to resolve lead for consent: %w", err)
		}
		current = &lead.ConsentStatus
	}

	resulting := apply.NextStatus
	switch {
	case current.Terminal():
		resulting = *current
	case *current != apply.NextStatus:
		if err := tx.UpdateLeadConsent(ctx, apply.LeadID, apply.NextStatus); err != nil {
			return fmt.Errorf("failed to store consent status: %w", err)
		}
	}

	event := &models.ConsentEvent{
		LeadID:     apply.LeadID,
		Status:     resulting,
		Source:     apply.Source,
		IPHash:     apply.IPHash,
		RecordedAt: time.Now().UTC(),
	}
	if err := tx.InsertConsentEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to append consent event: %w", err)
	}
	return nil
}
