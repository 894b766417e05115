// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package attribution resolves each inbound event to its (visitor,
// session) pair inside the caller's tenant transaction. It owns the
// session boundary rules: inactivity rotation, UTM-change rotation, and
// continuation.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/logging"
	"github.com/funnelgrid/funnelgrid/internal/metrics"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

// Input is one inbound event's attribution-relevant fields. AnonID is the
// client-generated anonymous id; Request carries the hashed fingerprint
// derived at the HTTP boundary.
type Input struct {
	AnonID     string
	PropertyID string
	OccurredAt time.Time
	Request    models.RequestContext
	Path       *string
	Referrer   *string
	UTM        models.UTM
}

// Result is the resolved pair. SessionStarted reports whether this event
// opened a new session (it feeds the rotation metrics and lets callers
// distinguish a touch from a new visit).
type Result struct {
	Visitor        *models.Visitor
	Session        *models.Session
	SessionStarted bool
}

// Engine applies the session boundary rules.
type Engine struct {
	inactivity time.Duration
}

// NewEngine creates an engine with the configured inactivity threshold.
func NewEngine(cfg config.AttributionConfig) *Engine {
	return &Engine{inactivity: cfg.SessionInactivity()}
}

// Resolve upserts the visitor, then continues or rotates its latest
// session. All writes go through the supplied transaction; on error the
// caller's rollback discards every row touched here.
func (e *Engine) Resolve(ctx context.Context, tx *database.TenantTx, input Input) (*Result, error) {
	visitor, err := tx.UpsertVisitor(ctx, input.AnonID, input.OccurredAt, input.Request)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve visitor: %w", err)
	}

	latest, err := tx.LatestSessionByVisitor(ctx, visitor.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to load latest session: %w", err)
	}

	rotate, cause := e.shouldStartNewSession(latest, input)
	if !rotate {
		if err := tx.TouchSession(ctx, latest.ID, input.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to continue session: %w", err)
		}
		latest.LastEventAt = input.OccurredAt.UTC()
		return &Result{Visitor: visitor, Session: latest}, nil
	}

	// Rotation closes the previous session at its own last activity.
	if latest != nil && latest.Open() {
		if err := tx.CloseSession(ctx, latest.ID); err != nil {
			return nil, fmt.Errorf("failed to close previous session: %w", err)
		}
	}

	session := newSession(visitor, input)
	if err := tx.InsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	metrics.SessionsRotated.WithLabelValues(tx.TenantID(), cause).Inc()
	logging.Ctx(ctx).Debug().
		Str("visitor_id", visitor.ID.String()).
		Str("cause", cause).
		Msg("Session rotated")

	return &Result{Visitor: visitor, Session: session, SessionStarted: true}, nil
}

// Rotation causes, used as the metric label.
const (
	causeFirstSession = "first"
	causeInactivity   = "inactivity"
	causeUTMChange    = "utm_change"
)

// shouldStartNewSession decides continuation vs rotation and names the
// cause. A nil latest session always rotates.
func (e *Engine) shouldStartNewSession(latest *models.Session, input Input) (bool, string) {
	if latest == nil {
		return true, causeFirstSession
	}
	if input.OccurredAt.Sub(latest.LastEventAt) > e.inactivity {
		return true, causeInactivity
	}
	// A changed marketing touch opens a new session even inside the
	// inactivity window.
	if !utmEqual(latest, input.UTM) {
		return true, causeUTMChange
	}
	return false, ""
}

// newSession seeds attribution fields from the triggering input only;
// continuation never mutates them afterwards.
func newSession(visitor *models.Visitor, input Input) *models.Session {
	occurredAt := input.OccurredAt.UTC()
	return &models.Session{
		VisitorID:   visitor.ID,
		PropertyID:  input.PropertyID,
		StartedAt:   occurredAt,
		LastEventAt: occurredAt,
		LandingPath: normalize(deref(input.Path)),
		Referrer:    normalize(deref(input.Referrer)),
		UTMSource:   normalize(input.UTM.Source),
		UTMMedium:   normalize(input.UTM.Medium),
		UTMCampaign: normalize(input.UTM.Campaign),
		UTMTerm:     normalize(input.UTM.Term),
		UTMContent:  normalize(input.UTM.Content),
	}
}

// utmEqual compares the session's stored UTM fields against the inbound
// ones, each side normalized independently.
func utmEqual(session *models.Session, utm models.UTM) bool {
	pairs := []struct {
		stored  *string
		inbound string
	}{
		{session.UTMSource, utm.Source},
		{session.UTMMedium, utm.Medium},
		{session.UTMCampaign, utm.Campaign},
		{session.UTMTerm, utm.Term},
		{session.UTMContent, utm.Content},
	}
	for _, p := range pairs {
		if !ptrEqual(p.stored, normalize(p.inbound)) {
			return false
		}
	}
	return true
}

// normalize trims whitespace and maps empty to null.
func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
