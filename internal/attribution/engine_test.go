// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

func setupTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return store
}

func testEngine() *Engine {
	return NewEngine(config.AttributionConfig{SessionInactivityMinutes: 30})
}

// resolve runs one Resolve call in its own transaction.
func resolve(t *testing.T, store *database.Store, engine *Engine, input Input) *Result {
	t.Helper()
	var result *Result
	err := store.Tenant("tenant-a").WithTx(context.Background(), func(tx *database.TenantTx) error {
		r, err := engine.Resolve(context.Background(), tx, input)
		result = r
		return err
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return result
}

func baseInput(occurredAt time.Time) Input {
	path := "/pricing"
	return Input{
		AnonID:     "anon-12345678",
		PropertyID: "default",
		OccurredAt: occurredAt,
		Request:    models.RequestContext{IPHash: "ip-hash", UAHash: "ua-hash"},
		Path:       &path,
	}
}

func TestResolveFirstEventStartsSession(t *testing.T) {
	store := setupTestStore(t)
	engine := testEngine()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	input := baseInput(start)
	input.UTM = models.UTM{Source: "newsletter", Medium: "email"}
	result := resolve(t, store, engine, input)

	if !result.SessionStarted {
		t.Fatal("first event must start a session")
	}
	if result.Session.VisitorID != result.Visitor.ID {
		t.Error("session must belong to the resolved visitor")
	}
	if !result.Session.Open() {
		t.Error("new session must be open")
	}
	if result.Session.LandingPath == nil || *result.Session.LandingPath != "/pricing" {
		t.Errorf("landing path not seeded: %v", result.Session.LandingPath)
	}
	if result.Session.UTMSource == nil || *result.Session.UTMSource != "newsletter" {
		t.Errorf("utm_source not seeded: %v", result.Session.UTMSource)
	}
}

func TestResolveContinuesWithinInactivityWindow(t *testing.T) {
	store := setupTestStore(t)
	engine := testEngine()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first := resolve(t, store, engine, baseInput(start))

	// 10 minutes later, same (absent) UTM: continuation.
	later := baseInput(start.Add(10 * time.Minute))
	otherPath := "/docs"
	later.Path = &otherPath
	second := resolve(t, store, engine, later)

	if second.SessionStarted {
		t.Fatal("event within the window must continue the session")
	}
	if second.Session.ID != first.Session.ID {
		t.Errorf("continuation switched sessions: %s != %s", second.Session.ID, first.Session.ID)
	}
	if !second.Session.LastEventAt.Equal(start.Add(10 * time.Minute)) {
		t.Errorf("last_event_at not advanced: %v", second.Session.LastEventAt)
	}
	// Attribution fields stay pinned to the opening event.
	if second.Session.LandingPath == nil || *second.Session.LandingPath != "/pricing" {
		t.Errorf("continuation mutated landing path: %v", second.Session.LandingPath)
	}
}

func TestResolveRotatesAfterInactivity(t *testing.T) {
	store := setupTestStore(t)
	engine := testEngine()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first := resolve(t, store, engine, baseInput(start))
	second := resolve(t, store, engine, baseInput(start.Add(31*time.Minute)))

	if !second.SessionStarted {
		t.Fatal("event past the inactivity threshold must rotate")
	}
	if second.Session.ID == first.Session.ID {
		t.Fatal("rotation must open a new session")
	}

	// The previous session closed at its own last activity.
	err := store.Tenant("tenant-a").WithTx(context.Background(), func(tx *database.TenantTx) error {
		latest, err := tx.LatestSessionByVisitor(context.Background(), first.Visitor.ID)
		if err != nil {
			return err
		}
		if latest.ID != second.Session.ID {
			t.Errorf("latest session should be the new one")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verification failed: %v", err)
	}
}

func TestResolveExactThresholdContinues(t *testing.T) {
	store := setupTestStore(t)
	engine := testEngine()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first := resolve(t, store, engine, baseInput(start))
	// Exactly 30 minutes: not strictly greater, so still a continuation.
	second := resolve(t, store, engine, baseInput(start.Add(30*time.Minute)))

	if second.SessionStarted {
		t.Error("elapsed == threshold must continue, rotation requires strictly greater")
	}
	if second.Session.ID != first.Session.ID {
		t.Error("exact-threshold event switched sessions")
	}
}

func TestResolveRotatesOnUTMChange(t *testing.T) {
	store := setupTestStore(t)
	engine := testEngine()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	input := baseInput(start)
	input.UTM = models.UTM{Source: "newsletter"}
	first := resolve(t, store, engine, input)

	// Two minutes later with a different campaign: new marketing touch.
	changed := baseInput(start.Add(2 * time.Minute))
	changed.UTM = models.UTM{Source: "ads", Campaign: "spring"}
	second := resolve(t, store, engine, changed)

	if !second.SessionStarted {
		t.Fatal("UTM change inside the window must rotate")
	}
	if second.Session.ID == first.Session.ID {
		t.Fatal("UTM rotation must open a new session")
	}
	if second.Session.UTMSource == nil || *second.Session.UTMSource != "ads" {
		t.Errorf("new session utm_source: %v", second.Session.UTMSource)
	}
}

func TestResolveNormalizesUTMBeforeComparing(t *testing.T) {
	store := setupTestStore(t)
	engine := testEngine()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	input := baseInput(start)
	input.UTM = models.UTM{Source: "newsletter"}
	first := resolve(t, store, engine, input)

	// Same source with padding, empty strings elsewhere: equal after
	// normalization, so no rotation.
	padded := baseInput(start.Add(5 * time.Minute))
	padded.UTM = models.UTM{Source: "  newsletter  ", Medium: "   "}
	second := resolve(t, store, engine, padded)

	if second.SessionStarted {
		t.Error("whitespace-only UTM differences must not rotate")
	}
	if second.Session.ID != first.Session.ID {
		t.Error("normalized-equal UTM switched sessions")
	}
}

func TestResolveDistinctVisitorsGetDistinctSessions(t *testing.T) {
	store := setupTestStore(t)
	engine := testEngine()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	a := resolve(t, store, engine, baseInput(start))

	other := baseInput(start)
	other.AnonID = "anon-87654321"
	b := resolve(t, store, engine, other)

	if a.Visitor.ID == b.Visitor.ID {
		t.Fatal("distinct anon ids must resolve distinct visitors")
	}
	if a.Session.ID == b.Session.ID {
		t.Fatal("distinct visitors must not share a session")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want *string
	}{
		{"", nil},
		{"   ", nil},
		{"newsletter", strp("newsletter")},
		{"  padded  ", strp("padded")},
	}
	for _, tt := range tests {
		got := normalize(tt.in)
		switch {
		case got == nil && tt.want != nil:
			t.Errorf("normalize(%q) = nil, want %q", tt.in, *tt.want)
		case got != nil && tt.want == nil:
			t.Errorf("normalize(%q) = %q, want nil", tt.in, *got)
		case got != nil && tt.want != nil && *got != *tt.want:
			t.Errorf("normalize(%q) = %q, want %q", tt.in, *got, *tt.want)
		}
	}
}

func strp(s string) *string {
	return &s
}
