// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package database owns all storage access. It wraps a DuckDB connection
// and exposes two handle types with different capability levels:
//
//   - TenantStore (Store.Tenant): bound to one tenant, used by request
//     handling. Every statement it issues carries the handle's tenant id;
//     code holding a TenantStore cannot name another tenant.
//   - PrivilegedStore (Store.Privileged): cross-tenant, used only by the
//     rollup aggregator, retention purge, rejection recording and the
//     materialized view refresher.
//
// Request-path writes run inside one all-or-nothing transaction obtained
// via TenantStore.WithTx; coordination between concurrent writers is
// pushed entirely to the storage engine's unique constraints and
// ON CONFLICT upserts, never to application-level locks.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/funnelgrid/funnelgrid/internal/config"
)

// defaultQueryTimeout bounds statements issued without a caller deadline.
const defaultQueryTimeout = 30 * time.Second

// Store wraps the DuckDB connection and hands out scoped handles.
type Store struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the database, configures the connection pool and initializes
// the schema.
func New(cfg *config.DatabaseConfig) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	if dbDir := filepath.Dir(cfg.Path); dbDir != "" && dbDir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{conn: conn, cfg: cfg}

	// DuckDB works best with a small pool; writes serialize on the
	// database anyway.
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(numThreads)
	conn.SetConnMaxLifetime(0)

	if err := s.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.createIndexes(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Ping checks if the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.conn.PingContext(ctx)
}

// Tenant returns a handle scoped to the given tenant. The handle is cheap;
// create one per request.
func (s *Store) Tenant(tenantID string) *TenantStore {
	return &TenantStore{store: s, tenantID: tenantID}
}

// Privileged returns the cross-tenant handle for background maintenance.
func (s *Store) Privileged() *PrivilegedStore {
	return &PrivilegedStore{store: s}
}

// ensureContext attaches the default timeout when the caller supplied no
// deadline, so no statement can hang indefinitely.
func (s *Store) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), defaultQueryTimeout)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, defaultQueryTimeout)
	}
	return ctx, func() {}
}
