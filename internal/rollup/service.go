// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package rollup

import (
	"context"
	"time"

	"github.com/funnelgrid/funnelgrid/internal/config"
	"github.com/funnelgrid/funnelgrid/internal/logging"
)

// ScheduledService periodically recomputes the trailing rollup window and
// refreshes the summary view. Runs under the suture tree next to the HTTP
// server; a failing tick logs and waits for the next interval instead of
// crashing the service (rollups are idempotent, a missed tick heals on
// the next one).
type ScheduledService struct {
	aggregator *Aggregator
	refresher  *Refresher
	interval   time.Duration
	windowDays int
}

// NewScheduledService creates the scheduled rollup service.
func NewScheduledService(aggregator *Aggregator, refresher *Refresher, cfg config.RollupConfig) *ScheduledService {
	interval := cfg.ScheduleInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &ScheduledService{
		aggregator: aggregator,
		refresher:  refresher,
		interval:   interval,
		windowDays: cfg.BatchDays,
	}
}

// Serve implements suture.Service: run one pass immediately, then on
// every interval tick until the context is canceled.
func (s *ScheduledService) Serve(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes one scheduled pass.
func (s *ScheduledService) runOnce(ctx context.Context) {
	if err := s.aggregator.RollupTrailingWindow(ctx, s.windowDays); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Scheduled rollup failed")
		return
	}
	if err := s.refresher.EnsureAndRefresh(ctx); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Summary view refresh failed")
	}
}

// String implements fmt.Stringer for suture log messages.
func (s *ScheduledService) String() string {
	return "rollup-scheduler"
}
