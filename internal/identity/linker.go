// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package identity links leads to visitors. Two mechanisms with very
// different evidence strength:
//
//   - explicit linking at form-submission time, confidence 1.0 - the
//     submission deterministically binds an email to the submitting
//     visitor;
//   - heuristic linking of other visitors sharing the primary visitor's
//     exact (ip hash, ua hash) fingerprint within a short window,
//     confidence fixed at 0.35 - "probably the same person on another
//     device or tab", never allowed to look as strong as an explicit
//     signal.
//
// Confidence per (lead, visitor, source) tuple only ever rises; heuristic
// re-runs cannot weaken a link established with better evidence.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/logging"
	"github.com/funnelgrid/funnelgrid/internal/metrics"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

// ExplicitLinkConfidence is assigned to form-submission links.
const ExplicitLinkConfidence = 1.0

// HeuristicLinkConfidence is the fixed confidence for fingerprint links.
const HeuristicLinkConfidence = 0.35

// Linker creates identity links inside the caller's transaction.
type Linker struct {
	enabled       bool
	window        time.Duration
	maxCandidates int
}

// NewLinker creates a linker with the configured heuristic knobs.
func NewLinker(cfg config.IdentityConfig) *Linker {
	return &Linker{
		enabled:       cfg.HeuristicLinkingEnabled,
		window:        cfg.HeuristicWindow(),
		maxCandidates: cfg.HeuristicMaxCandidates,
	}
}

// LinkLeadToVisitor creates or upgrades one link with explicit provenance.
func (l *Linker) LinkLeadToVisitor(ctx context.Context, tx *database.TenantTx, leadID, visitorID uuid.UUID, source models.LinkSource, confidence float64) error {
	outcome, err := tx.UpsertIdentityLink(ctx, leadID, visitorID, source, confidence)
	if err != nil {
		return fmt.Errorf("failed to link lead to visitor: %w", err)
	}

	if outcome != database.IdentityLinkUnchanged {
		logging.Ctx(ctx).Debug().
			Str("lead_id", leadID.String()).
			Str("visitor_id", visitorID.String()).
			Str("source", string(source)).
			Float64("confidence", confidence).
			Msg("Identity link written")
	}
	return nil
}

// LinkHeuristicVisitors links other visitors sharing the primary
// visitor's exact fingerprint, last seen within the window, excluding the
// primary itself, capped to the most recently seen matches. Returns the
// number of candidate visitors processed, not the number of rows changed.
// When the feature flag is off it returns zero immediately.
func (l *Linker) LinkHeuristicVisitors(ctx context.Context, tx *database.TenantTx, leadID, primaryVisitorID uuid.UUID, ipHash, uaHash string, now time.Time) (int, error) {
	if !l.enabled {
		return 0, nil
	}

	cutoff := now.UTC().Add(-l.window)
	candidates, err := tx.HeuristicCandidates(ctx, primaryVisitorID, ipHash, uaHash, cutoff, l.maxCandidates)
	if err != nil {
		return 0, fmt.Errorf("failed to find heuristic candidates: %w", err)
	}

	for _, candidate := range candidates {
		if _, err := tx.UpsertIdentityLink(ctx,
			leadID, candidate.ID, models.LinkSourceSameIPUAWindow, HeuristicLinkConfidence); err != nil {
			return 0, fmt.Errorf("failed to link heuristic candidate %s: %w", candidate.ID, err)
		}
	}

	metrics.HeuristicLinksExamined.WithLabelValues(tx.TenantID()).Add(float64(len(candidates)))
	return len(candidates), nil
}
