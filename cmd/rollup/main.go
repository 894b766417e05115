// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package main is the funnelgrid-rollup batch tool. It recomputes the
// daily rollups for a date range, refreshes the dashboard summary view,
// and optionally purges raw rows past the retention window. Runs are
// idempotent, so re-running a range after a crash is always safe.
//
// Usage:
//
//	funnelgrid-rollup                         # trailing batch window, all active tenants
//	funnelgrid-rollup --from=2026-08-01 --to=2026-08-31 --tenant=acme
//	funnelgrid-rollup --purge                 # also purge expired raw rows
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/logging"
	"github.com/funnelgrid/funnelgrid/internal/rollup"
)

const dayFormat = "2006-01-02"

func main() {
	var (
		fromFlag     = flag.String("from", "", "first day to roll up (YYYY-MM-DD, default: today minus batch window)")
		toFlag       = flag.String("to", "", "last day to roll up (YYYY-MM-DD, default: today)")
		tenantFlag   = flag.String("tenant", "", "tenant to roll up (default: every tenant with activity)")
		propertyFlag = flag.String("property-id", "", "property to roll up when --tenant is set (default: configured default property)")
		purgeFlag    = flag.Bool("purge", false, "purge raw rows older than the retention window after rolling up")
		refreshFlag  = flag.Bool("refresh", true, "refresh the dashboard summary view after rolling up")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(cfg.Rollup.BatchDays - 1))
	to := today
	if *fromFlag != "" {
		if from, err = time.Parse(dayFormat, *fromFlag); err != nil {
			logging.Fatal().Str("from", *fromFlag).Msg("--from must be formatted YYYY-MM-DD")
		}
	}
	if *toFlag != "" {
		if to, err = time.Parse(dayFormat, *toFlag); err != nil {
			logging.Fatal().Str("to", *toFlag).Msg("--to must be formatted YYYY-MM-DD")
		}
	}
	// Range errors exit before the database is even opened.
	if from.After(to) {
		logging.Fatal().
			Str("from", from.Format(dayFormat)).
			Str("to", to.Format(dayFormat)).
			Msg("--from must not be after --to")
	}

	store, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx := context.Background()
	priv := store.Privileged()
	aggregator := rollup.NewAggregator(priv)

	if *tenantFlag != "" {
		propertyID := *propertyFlag
		if propertyID == "" {
			propertyID = cfg.Rollup.DefaultPropertyID
		}
		result, err := aggregator.RollupDateRange(ctx, *tenantFlag, propertyID, from, to, cfg.Rollup.BatchDays)
		if err != nil {
			logging.Fatal().Err(err).Msg("Rollup failed")
		}
		logging.Info().
			Str("tenant", *tenantFlag).
			Str("property", propertyID).
			Int("days", result.DaysProcessed).
			Msg("Rollup complete")
	} else {
		days := 0
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			cells, err := priv.ActiveCells(ctx, day)
			if err != nil {
				logging.Fatal().Err(err).Str("day", day.Format(dayFormat)).Msg("Failed to list active cells")
			}
			for _, cell := range cells {
				if err := priv.RollupDay(ctx, cell.TenantID, cell.PropertyID, day); err != nil {
					logging.Fatal().Err(err).
						Str("tenant", cell.TenantID).
						Str("property", cell.PropertyID).
						Str("day", day.Format(dayFormat)).
						Msg("Rollup failed")
				}
			}
			days++
		}
		logging.Info().Int("days", days).Msg("Rollup complete for all active tenants")
	}

	if *refreshFlag {
		if err := rollup.NewRefresher(priv).EnsureAndRefresh(ctx); err != nil {
			logging.Error().Err(err).Msg("Failed to refresh summary view")
			os.Exit(1)
		}
		logging.Info().Msg("Summary view refreshed")
	}

	if *purgeFlag {
		result, err := priv.PurgeExpired(ctx, cfg.Privacy.RetentionDays)
		if err != nil {
			logging.Fatal().Err(err).Msg("Purge failed")
		}
		logging.Info().
			Int64("events", result.Events).
			Int64("sessions", result.Sessions).
			Int64("visitors", result.Visitors).
			Int64("rejections", result.Rejections).
			Msg("Purge complete")
	}
}
