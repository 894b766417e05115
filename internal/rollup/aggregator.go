// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package rollup recomputes the daily aggregate rows. The aggregator is
// shared by the CLI (explicit date ranges), the scheduled service
// (trailing window) and the admin run endpoint - one code path, three
// triggers.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/funnelgrid/funnelgrid/internal/database"
	"github.com/funnelgrid/funnelgrid/internal/logging"
	"github.com/funnelgrid/funnelgrid/internal/metrics"
	"github.com/funnelgrid/funnelgrid/internal/models"
)

// Aggregator runs date-range rollups on the privileged store handle.
type Aggregator struct {
	priv *database.PrivilegedStore
}

// NewAggregator creates an aggregator.
func NewAggregator(priv *database.PrivilegedStore) *Aggregator {
	return &Aggregator{priv: priv}
}

// RollupDateRange recomputes one row pair per UTC calendar day in
// [from, to] inclusive for (tenant, property), processing days in batches
// of batchSize to bound how much work sits between log checkpoints. Every
// day is recomputed independently, so correctness never depends on batch
// grouping, and re-running any range is idempotent.
func (a *Aggregator) RollupDateRange(ctx context.Context, tenantID, propertyID string, from, to time.Time, batchSize int) (*models.RollupResult, error) {
	start := time.Now()
	fromDay, _ := database.DayWindow(from)
	toDay, _ := database.DayWindow(to)
	if fromDay.After(toDay) {
		return nil, fmt.Errorf("invalid range: from %s is after to %s",
			fromDay.Format(models.DayFormat), toDay.Format(models.DayFormat))
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	var days []time.Time
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}

	result := &models.RollupResult{}
	for batchStart := 0; batchStart < len(days); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(days) {
			batchEnd = len(days)
		}

		for _, day := range days[batchStart:batchEnd] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := a.priv.RollupDay(ctx, tenantID, propertyID, day); err != nil {
				metrics.RollupErrors.Inc()
				return nil, fmt.Errorf("failed to roll up %s: %w", day.Format(models.DayFormat), err)
			}
			result.DaysProcessed++
			result.Days = append(result.Days, day.Format(models.DayFormat))
			metrics.RollupDaysProcessed.Inc()
		}

		logging.Ctx(ctx).Debug().
			Str("tenant_id", tenantID).
			Str("property_id", propertyID).
			Int("days_done", result.DaysProcessed).
			Int("days_total", len(days)).
			Msg("Rollup batch complete")
	}

	metrics.RollupRunDuration.Observe(time.Since(start).Seconds())
	logging.Ctx(ctx).Info().
		Str("tenant_id", tenantID).
		Str("property_id", propertyID).
		Str("from", fromDay.Format(models.DayFormat)).
		Str("to", toDay.Format(models.DayFormat)).
		Int("days", result.DaysProcessed).
		Dur("elapsed", time.Since(start)).
		Msg("Rollup range complete")
	return result, nil
}

// RollupTrailingWindow recomputes the trailing windowDays window (ending
// today, UTC) for every (tenant, property) cell with activity in it. This
// is the scheduled service's tick body.
func (a *Aggregator) RollupTrailingWindow(ctx context.Context, windowDays int) error {
	if windowDays <= 0 {
		return fmt.Errorf("window days must be positive, got %d", windowDays)
	}

	today, _ := database.DayWindow(time.Now().UTC())
	for offset := windowDays - 1; offset >= 0; offset-- {
		day := today.AddDate(0, 0, -offset)
		cells, err := a.priv.ActiveCells(ctx, day)
		if err != nil {
			return fmt.Errorf("failed to list active cells for %s: %w",
				day.Format(models.DayFormat), err)
		}
		for _, cell := range cells {
			if err := a.priv.RollupDay(ctx, cell.TenantID, cell.PropertyID, day); err != nil {
				metrics.RollupErrors.Inc()
				return fmt.Errorf("failed to roll up %s/%s on %s: %w",
					cell.TenantID, cell.PropertyID, day.Format(models.DayFormat), err)
			}
			metrics.RollupDaysProcessed.Inc()
		}
	}
	return nil
}
