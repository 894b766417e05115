// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/attribution"
	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/consent"
	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/identity"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

func setupTestService(t *testing.T) (*Service, *database.Store) {
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

	svc := NewService(
		store,
		attribution.NewEngine(config.AttributionConfig{SessionInactivityMinutes: 30}),
		identity.NewLinker(config.IdentityConfig{
			HeuristicLinkingEnabled: true,
			HeuristicWindowMinutes:  15,
			HeuristicMaxCandidates:  20,
		}),
		consent.NewLedger(),
		"default",
	)
	return svc, store
}

func testReqCtx() models.RequestContext {
	return models.RequestContext{IPHash: "ip-hash", UAHash: "ua-hash"}
}

func testEvent(dedupeKey string, occurredAt time.Time) EventInput {
	return EventInput{
		AnonID:     "anon-12345678",
		EventType:  models.EventTypePageView,
		DedupeKey:  dedupeKey,
		OccurredAt: occurredAt,
	}
}

func TestIngestEventsBatch(t *testing.T) {
	svc, store := setupTestService(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	result, err := svc.IngestEvents(context.Background(), "tenant-a", testReqCtx(), []EventInput{
		testEvent("e1", now),
		testEvent("e2", now.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("IngestEvents failed: %v", err)
	}
	if result.Accepted != 2 || result.Deduped != 0 || result.Rejected != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Both events share one visitor and one session.
	err = store.Tenant("tenant-a").WithTx(context.Background(), func(tx *database.TenantTx) error {
		visitor, err := tx.VisitorByAnonID(context.Background(), "anon-12345678")
		if err != nil {
			return err
		}
		session, err := tx.LatestSessionByVisitor(context.Background(), visitor.ID)
		if err != nil {
			return err
		}
		if !session.LastEventAt.Equal(now.Add(time.Minute)) {
			t.Errorf("session last_event_at: %v", session.LastEventAt)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verification failed: %v", err)
	}
}

func TestIngestEventsDeduplicatesRetries(t *testing.T) {
	svc, _ := setupTestService(t)
	now := time.Now().UTC()

	first, err := svc.IngestEvents(context.Background(), "tenant-a", testReqCtx(),
		[]EventInput{testEvent("e1", now)})
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	if first.Accepted != 1 {
		t.Fatalf("first ingest: %+v", first)
	}

	retry, err := svc.IngestEvents(context.Background(), "tenant-a", testReqCtx(),
		[]EventInput{testEvent("e1", now)})
	if err != nil {
		t.Fatalf("retried ingest failed: %v", err)
	}
	if retry.Accepted != 0 || retry.Deduped != 1 {
		t.Fatalf("retry should dedupe: %+v", retry)
	}
}

func TestIngestEventsRejectsInvalidItems(t *testing.T) {
	svc, store := setupTestService(t)
	now := time.Now().UTC()

	bad := testEvent("e-bad", now)
	bad.AnonID = "short" // below the 8-char minimum

	result, err := svc.IngestEvents(context.Background(), "tenant-a", testReqCtx(),
		[]EventInput{bad, testEvent("e-good", now)})
	if err != nil {
		t.Fatalf("IngestEvents failed: %v", err)
	}
	if result.Accepted != 1 || result.Rejected != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// The rejection landed in storage for the ingest-health rollup.
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cells, err := store.Privileged().ActiveCells(context.Background(), day)
	if err != nil {
		t.Fatalf("ActiveCells failed: %v", err)
	}
	if len(cells) == 0 {
		t.Error("rejection should mark the cell active")
	}
}

func TestIngestEventsEmptyBatch(t *testing.T) {
	svc, _ := setupTestService(t)
	if _, err := svc.IngestEvents(context.Background(), "tenant-a", testReqCtx(), nil); err == nil {
		t.Fatal("empty batch must error")
	}
}

func TestCaptureLeadFullPath(t *testing.T) {
	svc, store := setupTestService(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// Another visitor on the same fingerprint, seen moments earlier:
	// heuristic candidate.
	err := store.Tenant("tenant-a").WithTx(context.Background(), func(tx *database.TenantTx) error {
		_, err := tx.UpsertVisitor(context.Background(), "anon-tablet00", now.Add(-2*time.Minute), testReqCtx())
		return err
	})
	if err != nil {
		t.Fatalf("seed candidate: %v", err)
	}

	result, err := svc.CaptureLead(context.Background(), "tenant-a", testReqCtx(), LeadInput{
		Email:         "  Jo@Example.COM ",
		AnonID:        "anon-12345678",
		FormID:        "signup",
		DedupeKey:     "sub-1",
		OccurredAt:    now,
		ConsentStatus: string(models.ConsentExpress),
		Payload:       strPtr(`{"plan":"pro"}`),
	})
	if err != nil {
		t.Fatalf("CaptureLead failed: %v", err)
	}
	if !result.Created || !result.Submitted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.HeuristicCandidates != 1 {
		t.Errorf("heuristic candidates: expected 1, got %d", result.HeuristicCandidates)
	}

	err = store.Tenant("tenant-a").WithTx(context.Background(), func(tx *database.TenantTx) error {
		lead, err := tx.LeadByEmail(context.Background(), "jo@example.com")
		if err != nil {
			return err
		}
		if lead.ConsentStatus != models.ConsentExpress {
			t.Errorf("consent: expected express, got %s", lead.ConsentStatus)
		}

		links, err := tx.IdentityLinksByLead(context.Background(), lead.ID)
		if err != nil {
			return err
		}
		// Explicit link to the submitter plus one heuristic link.
		if len(links) != 2 {
			t.Fatalf("expected 2 identity links, got %d", len(links))
		}
		if links[0].LinkSource != models.LinkSourceFormSubmit || links[0].Confidence != 1.0 {
			t.Errorf("strongest link: %+v", links[0])
		}

		events, err := tx.ConsentEventsByLead(context.Background(), lead.ID)
		if err != nil {
			return err
		}
		if len(events) != 1 {
			t.Errorf("expected 1 consent event, got %d", len(events))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verification failed: %v", err)
	}
}

func TestCaptureLeadRetryIsIdempotent(t *testing.T) {
	svc, _ := setupTestService(t)
	now := time.Now().UTC()

	input := LeadInput{
		Email:      "jo@example.com",
		AnonID:     "anon-12345678",
		FormID:     "signup",
		DedupeKey:  "sub-1",
		OccurredAt: now,
	}

	first, err := svc.CaptureLead(context.Background(), "tenant-a", testReqCtx(), input)
	if err != nil {
		t.Fatalf("first capture failed: %v", err)
	}
	retry, err := svc.CaptureLead(context.Background(), "tenant-a", testReqCtx(), input)
	if err != nil {
		t.Fatalf("retried capture failed: %v", err)
	}

	if retry.Created {
		t.Error("retry must not create a second lead")
	}
	if retry.Submitted {
		t.Error("retry must dedupe the submission")
	}
	if retry.LeadID != first.LeadID {
		t.Errorf("retry resolved a different lead: %s != %s", retry.LeadID, first.LeadID)
	}
}

func TestCaptureLeadRejectsInvalidInput(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.CaptureLead(context.Background(), "tenant-a", testReqCtx(), LeadInput{
		Email:      "not-an-email",
		AnonID:     "anon-12345678",
		FormID:     "signup",
		DedupeKey:  "sub-1",
		OccurredAt: time.Now().UTC(),
	})
	if err == nil {
		t.Fatal("invalid email must be rejected")
	}
}

func TestApplyConsentStandalone(t *testing.T) {
	svc, store := setupTestService(t)
	now := time.Now().UTC()

	capture, err := svc.CaptureLead(context.Background(), "tenant-a", testReqCtx(), LeadInput{
		Email:      "jo@example.com",
		AnonID:     "anon-12345678",
		FormID:     "signup",
		DedupeKey:  "sub-1",
		OccurredAt: now,
	})
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	leadID := uuid.MustParse(capture.LeadID)

	if err := svc.ApplyConsent(context.Background(), "tenant-a", consent.Apply{
		LeadID:     leadID,
		NextStatus: models.ConsentWithdrawn,
		Source:     "preference_center",
	}); err != nil {
		t.Fatalf("ApplyConsent failed: %v", err)
	}

	err = store.Tenant("tenant-a").WithTx(context.Background(), func(tx *database.TenantTx) error {
		lead, err := tx.LeadByID(context.Background(), leadID)
		if err != nil {
			return err
		}
		if lead.ConsentStatus != models.ConsentWithdrawn {
			t.Errorf("expected withdrawn, got %s", lead.ConsentStatus)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verification failed: %v", err)
	}
}

func TestDeleteLead(t *testing.T) {
	svc, store := setupTestService(t)
	now := time.Now().UTC()

	capture, err := svc.CaptureLead(context.Background(), "tenant-a", testReqCtx(), LeadInput{
		Email:      "jo@example.com",
		AnonID:     "anon-12345678",
		FormID:     "signup",
		DedupeKey:  "sub-1",
		OccurredAt: now,
	})
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	if err := svc.DeleteLead(context.Background(), "tenant-a", capture.LeadID); err != nil {
		t.Fatalf("DeleteLead failed: %v", err)
	}
	if err := svc.DeleteLead(context.Background(), "tenant-a", "not-a-uuid"); err == nil {
		t.Fatal("malformed id must error")
	}

	err = store.Tenant("tenant-a").WithTx(context.Background(), func(tx *database.TenantTx) error {
		_, err := tx.LeadByEmail(context.Background(), "jo@example.com")
		if err == nil {
			t.Error("lead should be gone")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verification failed: %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Jo@Example.COM", "jo@example.com"},
		{"  jo@example.com  ", "jo@example.com"},
		{"jo+tag@example.com", "jo+tag@example.com"}, // plus suffix preserved
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func strPtr(s string) *string {
	return &s
}
