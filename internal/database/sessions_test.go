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

func TestSessionLifecycle(t *testing.T) {
	store := setupTestDB(t)
	startedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	visitor := insertTestVisitor(t, store, "tenant-a", "anon-1", startedAt)

	session := &models.Session{
		VisitorID:   visitor.ID,
		PropertyID:  "default",
		StartedAt:   startedAt,
		LastEventAt: startedAt,
		LandingPath: strPtr("/pricing"),
		UTMSource:   strPtr("newsletter"),
	}

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		return tx.InsertSession(context.Background(), session)
	})

	// Continued activity moves last_event_at; ended_at stays null.
	touchedAt := startedAt.Add(10 * time.Minute)
	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		return tx.TouchSession(context.Background(), session.ID, touchedAt)
	})

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		got, err := tx.LatestSessionByVisitor(context.Background(), visitor.ID)
		checkNoError(t, err)
		if !got.Open() {
			t.Error("session should still be open after touch")
		}
		if !got.LastEventAt.Equal(touchedAt) {
			t.Errorf("last_event_at: expected %v, got %v", touchedAt, got.LastEventAt)
		}
		checkStringEqual(t, "landing_path", *got.LandingPath, "/pricing")
		checkStringEqual(t, "utm_source", *got.UTMSource, "newsletter")
		return nil
	})

	// Closing pins ended_at to the last observed activity.
	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		return tx.CloseSession(context.Background(), session.ID)
	})

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		got, err := tx.LatestSessionByVisitor(context.Background(), visitor.ID)
		checkNoError(t, err)
		if got.Open() {
			t.Fatal("session should be closed")
		}
		if !got.EndedAt.Equal(touchedAt) {
			t.Errorf("ended_at: expected last activity %v, got %v", touchedAt, *got.EndedAt)
		}
		return nil
	})
}

func TestTouchSessionRejectsClosedSession(t *testing.T) {
	store := setupTestDB(t)
	startedAt := time.Now().UTC()
	visitor := insertTestVisitor(t, store, "tenant-a", "anon-1", startedAt)

	session := &models.Session{
		VisitorID:   visitor.ID,
		PropertyID:  "default",
		StartedAt:   startedAt,
		LastEventAt: startedAt,
	}
	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		if err := tx.InsertSession(context.Background(), session); err != nil {
			return err
		}
		return tx.CloseSession(context.Background(), session.ID)
	})

	err := store.Tenant("tenant-a").WithTx(context.Background(), func(tx *TenantTx) error {
		return tx.TouchSession(context.Background(), session.ID, startedAt.Add(time.Minute))
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("touching a closed session: expected ErrNotFound, got %v", err)
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	startedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	visitor := insertTestVisitor(t, store, "tenant-a", "anon-1", startedAt)

	session := &models.Session{
		VisitorID:   visitor.ID,
		PropertyID:  "default",
		StartedAt:   startedAt,
		LastEventAt: startedAt.Add(5 * time.Minute),
	}
	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		return tx.InsertSession(context.Background(), session)
	})

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		if err := tx.CloseSession(context.Background(), session.ID); err != nil {
			return err
		}
		return tx.CloseSession(context.Background(), session.ID)
	})

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		got, err := tx.LatestSessionByVisitor(context.Background(), visitor.ID)
		checkNoError(t, err)
		if !got.EndedAt.Equal(startedAt.Add(5 * time.Minute)) {
			t.Errorf("second close moved ended_at to %v", *got.EndedAt)
		}
		return nil
	})
}

func TestLatestSessionByVisitorOrdersByStart(t *testing.T) {
	store := setupTestDB(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	visitor := insertTestVisitor(t, store, "tenant-a", "anon-1", base)

	var latest uuid.UUID
	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		for i := 0; i < 3; i++ {
			s := &models.Session{
				VisitorID:   visitor.ID,
				PropertyID:  "default",
				StartedAt:   base.Add(time.Duration(i) * time.Hour),
				LastEventAt: base.Add(time.Duration(i) * time.Hour),
			}
			if err := tx.InsertSession(context.Background(), s); err != nil {
				return err
			}
			latest = s.ID
		}
		return nil
	})

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		got, err := tx.LatestSessionByVisitor(context.Background(), visitor.ID)
		checkNoError(t, err)
		if got.ID != latest {
			t.Errorf("expected latest session %s, got %s", latest, got.ID)
		}
		return nil
	})
}

func TestLatestSessionByVisitorNotFound(t *testing.T) {
	store := setupTestDB(t)

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		_, err := tx.LatestSessionByVisitor(context.Background(), uuid.New())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		return nil
	})
}
