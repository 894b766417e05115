// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package main is the entry point for the Funnelgrid server.
//
// Funnelgrid ingests web traffic events and lead-capture form
// submissions for multiple tenants, attributes them to visitors and
// sessions, links identities, records consent, and pre-aggregates daily
// rollups for the admin dashboard.
//
// # Application Architecture
//
// The server initializes components in this order:
//
//  1. Configuration: Koanf v2 layered sources (env, config file, defaults)
//  2. Database: DuckDB with the analytics schema
//  3. Core services: request-context deriver, attribution engine,
//     identity linker, consent ledger, ingest orchestrator
//  4. Rollup: aggregator, summary-view refresher, optional scheduler
//  5. HTTP server: chi router under a suture supervisor tree
//
// # Configuration
//
// All settings come from FUNNELGRID_-prefixed environment variables or
// an optional config.yaml. FUNNELGRID_PRIVACY_HASH_SALT must be set in
// production; rotating it unlinks previously derived fingerprints.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the server stops
// accepting connections, drains in-flight requests, stops the rollup
// scheduler and closes the database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/funnelgrid/funnelgrid/internal/api"
	"github.com/funnelgrid/funnelgrid/internal/attribution"
	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/consent"
	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/identity"
	"github.com/funnelgrid/funnelgrid/internal/ingest"
	"github.com/funnelgrid/funnelgrid/internal/logging"
	"github.com/funnelgrid/funnelgrid/internal/requestctx"
	"github.com/funnelgrid/funnelgrid/internal/rollup"
	"github.com/funnelgrid/funnelgrid/internal/supervisor"
	"github.com/funnelgrid/funnelgrid/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors use the default logger; config is not available yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("default_property", cfg.Rollup.DefaultPropertyID).
		Bool("heuristic_linking", cfg.Identity.HeuristicLinkingEnabled).
		Bool("rollup_schedule", cfg.Rollup.ScheduleEnabled).
		Msg("Starting Funnelgrid")

	if cfg.Privacy.HashSalt == "" {
		logging.Warn().Msg("FUNNELGRID_PRIVACY_HASH_SALT is not set; fingerprints use an empty salt")
	}
	if cfg.Server.AdminKeyHash == "" {
		logging.Warn().Msg("Admin key hash not configured; /admin endpoints are disabled")
	}

	store, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	// Core services are stateless once constructed; all per-request state
	// lives in the tenant transaction.
	deriver := requestctx.NewDeriver(cfg.Privacy.HashSalt)
	engine := attribution.NewEngine(cfg.Attribution)
	linker := identity.NewLinker(cfg.Identity)
	ledger := consent.NewLedger()
	ingestSvc := ingest.NewService(store, engine, linker, ledger, cfg.Rollup.DefaultPropertyID)

	aggregator := rollup.NewAggregator(store.Privileged())
	refresher := rollup.NewRefresher(store.Privileged())

	handler := api.NewHandler(store, ingestSvc, aggregator, refresher, deriver, cfg.Rollup)
	router := api.NewRouter(handler, cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(services.NewHTTPServerService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))

	if cfg.Rollup.ScheduleEnabled {
		tree.AddJobService(rollup.NewScheduledService(aggregator, refresher, cfg.Rollup))
		logging.Info().
			Dur("interval", cfg.Rollup.ScheduleInterval).
			Int("window_days", cfg.Rollup.BatchDays).
			Msg("Rollup scheduler enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := tree.ServeBackground(ctx)
	logging.Info().Str("addr", server.Addr).Msg("Funnelgrid listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor stopped with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Fatal().Err(err).Msg("Supervisor tree failed")
		}
	}

	logging.Info().Msg("Funnelgrid stopped")
}
