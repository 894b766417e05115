// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/models"
)

func TestUpsertVisitorCreatesOnFirstSight(t *testing.T) {
	store := setupTestDB(t)
	seenAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	visitor := insertTestVisitor(t, store, "tenant-a", "anon-1", seenAt)

	checkStringEqual(t, "tenant_id", visitor.TenantID, "tenant-a")
	checkStringEqual(t, "anon_id", visitor.AnonID, "anon-1")
	if !visitor.FirstSeenAt.Equal(seenAt) {
		t.Errorf("first_seen_at: expected %v, got %v", seenAt, visitor.FirstSeenAt)
	}
	if !visitor.LastSeenAt.Equal(seenAt) {
		t.Errorf("last_seen_at: expected %v, got %v", seenAt, visitor.LastSeenAt)
	}
	checkStringEqual(t, "first_ip_hash", visitor.FirstIPHash, "iphash-anon-1")
	checkStringEqual(t, "last_ip_hash", visitor.LastIPHash, "iphash-anon-1")
}

func TestUpsertVisitorPreservesFirstSeenFields(t *testing.T) {
	store := setupTestDB(t)
	firstSeen := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	secondSeen := firstSeen.Add(2 * time.Hour)

	first := insertTestVisitor(t, store, "tenant-a", "anon-1", firstSeen)

	var second *models.Visitor
	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		v, err := tx.UpsertVisitor(context.Background(), "anon-1", secondSeen, models.RequestContext{
			IPHash: "iphash-new",
			UAHash: "uahash-new",
		})
		second = v
		return err
	})

	if second.ID != first.ID {
		t.Errorf("upsert created a second row: %s != %s", second.ID, first.ID)
	}
	if !second.FirstSeenAt.Equal(firstSeen) {
		t.Errorf("first_seen_at moved: expected %v, got %v", firstSeen, second.FirstSeenAt)
	}
	if !second.LastSeenAt.Equal(secondSeen) {
		t.Errorf("last_seen_at: expected %v, got %v", secondSeen, second.LastSeenAt)
	}
	checkStringEqual(t, "first_ip_hash", second.FirstIPHash, "iphash-anon-1")
	checkStringEqual(t, "last_ip_hash", second.LastIPHash, "iphash-new")
	checkStringEqual(t, "last_ua_hash", second.LastUAHash, "uahash-new")
}

func TestVisitorsAreIsolatedPerTenant(t *testing.T) {
	store := setupTestDB(t)
	seenAt := time.Now().UTC()

	a := insertTestVisitor(t, store, "tenant-a", "anon-1", seenAt)
	b := insertTestVisitor(t, store, "tenant-b", "anon-1", seenAt)

	if a.ID == b.ID {
		t.Fatal("same anon_id across tenants must produce distinct visitors")
	}

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		got, err := tx.VisitorByAnonID(context.Background(), "anon-1")
		checkNoError(t, err)
		if got.ID != a.ID {
			t.Errorf("tenant-a lookup returned visitor %s, expected %s", got.ID, a.ID)
		}
		return nil
	})

	withTestTx(t, store, "tenant-c", func(tx *TenantTx) error {
		_, err := tx.VisitorByAnonID(context.Background(), "anon-1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("tenant-c lookup: expected ErrNotFound, got %v", err)
		}
		return nil
	})
}

func TestHeuristicCandidates(t *testing.T) {
	store := setupTestDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-15 * time.Minute)

	// Shared fingerprint for everyone in this test.
	fp := models.RequestContext{IPHash: "ip-shared", UAHash: "ua-shared"}

	seed := func(anonID string, seenAt time.Time, reqCtx models.RequestContext) *models.Visitor {
		var visitor *models.Visitor
		withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
			v, err := tx.UpsertVisitor(context.Background(), anonID, seenAt, reqCtx)
			visitor = v
			return err
		})
		return visitor
	}

	primary := seed("anon-primary", now, fp)
	inWindow := seed("anon-recent", now.Add(-5*time.Minute), fp)
	seed("anon-stale", now.Add(-1*time.Hour), fp)
	seed("anon-other-ua", now.Add(-2*time.Minute), models.RequestContext{IPHash: "ip-shared", UAHash: "ua-other"})

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		candidates, err := tx.HeuristicCandidates(context.Background(),
			primary.ID, fp.IPHash, fp.UAHash, cutoff, 20)
		checkNoError(t, err)

		checkIntEqual(t, "candidate count", len(candidates), 1)
		if len(candidates) == 1 && candidates[0].ID != inWindow.ID {
			t.Errorf("expected candidate %s, got %s", inWindow.ID, candidates[0].ID)
		}
		return nil
	})
}

func TestHeuristicCandidatesRespectsLimit(t *testing.T) {
	store := setupTestDB(t)
	now := time.Now().UTC()
	fp := models.RequestContext{IPHash: "ip-shared", UAHash: "ua-shared"}

	var primary *models.Visitor
	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		v, err := tx.UpsertVisitor(context.Background(), "anon-primary", now, fp)
		primary = v
		if err != nil {
			return err
		}
		for i := 0; i < 5; i++ {
			anonID := "anon-" + uuid.NewString()
			if _, err := tx.UpsertVisitor(context.Background(), anonID, now, fp); err != nil {
				return err
			}
		}
		return nil
	})

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		candidates, err := tx.HeuristicCandidates(context.Background(),
			primary.ID, fp.IPHash, fp.UAHash, now.Add(-time.Minute), 3)
		checkNoError(t, err)
		checkIntEqual(t, "capped candidate count", len(candidates), 3)
		return nil
	})
}
