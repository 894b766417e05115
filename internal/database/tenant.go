// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TenantStore is the request-scoped storage handle. It binds every
// statement to one tenant id; the type exposes no raw SQL escape hatch,
// so holding a TenantStore is holding exactly one tenant's rows.
type TenantStore struct {
	store    *Store
	tenantID string
}

// TenantID returns the tenant this handle is bound to.
func (t *TenantStore) TenantID() string {
	return t.tenantID
}

// TenantTx is one all-or-nothing transaction bound to a tenant. All
// request-path writes (attribution, identity linking, consent) go through
// methods on this type.
type TenantTx struct {
	tx       *sql.Tx
	tenantID string
}

// TenantID returns the tenant this transaction is bound to.
func (t *TenantTx) TenantID() string {
	return t.tenantID
}

// WithTx runs fn inside a transaction. Any error from fn (or from commit)
// rolls back everything: no partial visitor without a session, no identity
// link outside its consistency guarantees.
func (t *TenantStore) WithTx(ctx context.Context, fn func(*TenantTx) error) error {
	ctx, cancel := t.store.ensureContext(ctx)
	defer cancel()

	tx, err := t.store.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	ttx := &TenantTx{tx: tx, tenantID: t.tenantID}
	if err := fn(ttx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PrivilegedStore is the cross-tenant handle for background maintenance:
// rollup aggregation, retention purge, rejection recording and the
// materialized view refresher. Never handed to request handlers; tenant
// ids are explicit parameters on its methods.
type PrivilegedStore struct {
	store *Store
}
