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

	"github.com/funnelgrid/funnelgrid/internal/models"
)

func TestInsertEventDeduplicates(t *testing.T) {
	store := setupTestDB(t)
	now := time.Now().UTC()
	visitor := insertTestVisitor(t, store, "tenant-a", "anon-1", now)

	event := func() *models.Event {
		return &models.Event{
			PropertyID: "default",
			VisitorID:  visitor.ID,
			EventType:  models.EventTypePageView,
			Path:       strPtr("/pricing"),
			DedupeKey:  "evt-1",
			OccurredAt: now,
		}
	}

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		inserted, err := tx.InsertEvent(context.Background(), event())
		checkNoError(t, err)
		if !inserted {
			t.Error("first insert should be accepted")
		}

		inserted, err = tx.InsertEvent(context.Background(), event())
		checkNoError(t, err)
		if inserted {
			t.Error("duplicate dedupe_key should be dropped")
		}
		return nil
	})

	// Same dedupe_key under another tenant is a fresh event.
	other := insertTestVisitor(t, store, "tenant-b", "anon-1", now)
	withTestTx(t, store, "tenant-b", func(tx *TenantTx) error {
		e := event()
		e.VisitorID = other.ID
		inserted, err := tx.InsertEvent(context.Background(), e)
		checkNoError(t, err)
		if !inserted {
			t.Error("dedupe keys must not collide across tenants")
		}
		return nil
	})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := setupTestDB(t)
	now := time.Now().UTC()

	sentinel := errors.New("abort")
	err := store.Tenant("tenant-a").WithTx(context.Background(), func(tx *TenantTx) error {
		if _, err := tx.UpsertVisitor(context.Background(), "anon-1", now, models.RequestContext{
			IPHash: "ip", UAHash: "ua",
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	withTestTx(t, store, "tenant-a", func(tx *TenantTx) error {
		_, err := tx.VisitorByAnonID(context.Background(), "anon-1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("visitor should have been rolled back, got %v", err)
		}
		return nil
	})
}

func TestRecordIngestRejection(t *testing.T) {
	store := setupTestDB(t)

	err := store.Privileged().RecordIngestRejection(context.Background(), &models.IngestRejection{
		TenantID:   "tenant-a",
		PropertyID: "default",
		Reason:     "missing anon_id",
	})
	checkNoError(t, err)

	var count int
	checkNoError(t, store.conn.QueryRow(
		`SELECT COUNT(*) FROM ingest_rejections WHERE tenant_id = ? AND reason = ?`,
		"tenant-a", "missing anon_id").Scan(&count))
	checkIntEqual(t, "rejection rows", count, 1)
}
