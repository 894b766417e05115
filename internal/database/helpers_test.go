// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

// testDBSemaphore serializes test database lifecycles. Concurrent DuckDB
// CGO calls from parallel tests can hang under CI resource pressure, so
// only one test holds an active connection at a time.
var testDBSemaphore = make(chan struct{}, 1)

// testDBMutex serializes the New() call itself.
var testDBMutex sync.Mutex

// setupTestDB creates an in-memory store. The semaphore is held for the
// whole test lifecycle and released via t.Cleanup, not after creation.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	}

	type result struct {
		store *Store
		err   error
	}

	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		store, err := New(cfg)
		testDBMutex.Unlock()
		resultCh <- result{store: store, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.store.Close(); err != nil {
				t.Logf("Failed to close test database: %v", err)
			}
		})
		return res.store
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s")
		return nil
	}
}

// withTestTx runs fn inside a tenant transaction and fails the test on error.
func withTestTx(t *testing.T, store *Store, tenantID string, fn func(*TenantTx) error) {
	t.Helper()
	if err := store.Tenant(tenantID).WithTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

// insertTestVisitor creates a visitor via the upsert path and returns it.
func insertTestVisitor(t *testing.T, store *Store, tenantID, anonID string, seenAt time.Time) *models.Visitor {
	t.Helper()
	var visitor *models.Visitor
	withTestTx(t, store, tenantID, func(tx *TenantTx) error {
		v, err := tx.UpsertVisitor(context.Background(), anonID, seenAt, models.RequestContext{
			IPHash: "iphash-" + anonID,
			UAHash: "uahash-" + anonID,
		})
		visitor = v
		return err
	})
	return visitor
}

// insertTestLead creates a lead via the upsert path and returns it.
func insertTestLead(t *testing.T, store *Store, tenantID, email string, capturedAt time.Time) *models.Lead {
	t.Helper()
	var lead *models.Lead
	withTestTx(t, store, tenantID, func(tx *TenantTx) error {
		l, _, err := tx.UpsertLead(context.Background(), email, "web_form", capturedAt)
		lead = l
		return err
	})
	return lead
}

// insertTestEvent writes one event and fails the test unless it was accepted.
func insertTestEvent(t *testing.T, store *Store, tenantID string, event *models.Event) {
	t.Helper()
	withTestTx(t, store, tenantID, func(tx *TenantTx) error {
		inserted, err := tx.InsertEvent(context.Background(), event)
		if err != nil {
			return err
		}
		if !inserted {
			t.Fatalf("event %s was deduplicated, expected insert", event.DedupeKey)
		}
		return nil
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func strPtr(s string) *string {
	return &s
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

// checkNoError fails the test if err is not nil
func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// checkError fails the test if err is nil
func checkError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// checkStringEqual checks that got equals want
func checkStringEqual(t *testing.T, fieldName, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %q, got %q", fieldName, want, got)
	}
}

// checkInt64Equal checks that got equals want
func checkInt64Equal(t *testing.T, fieldName string, got, want int64) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, got)
	}
}

// checkIntEqual checks that got equals want
func checkIntEqual(t *testing.T, fieldName string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, got)
	}
}
