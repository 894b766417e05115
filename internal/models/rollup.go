// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package models

import "time"

// DayFormat is the canonical YYYY-MM-DD form of a UTC calendar day used
// as the rollup key. Bucketing always uses UTC, never local time.
const DayFormat = "2006-01-02"

// DailyMetricRollup is one pre-aggregated row per (tenant, property, UTC
// day), fully recomputable from the raw tables. A cache, not a source of
// truth: every rollup run overwrites all aggregate columns.
type DailyMetricRollup struct {
	TenantID        string    `json:"tenantId"`
	PropertyID      string    `json:"propertyId"`
	Day             string    `json:"day"`
	UniqueVisitors  int64     `json:"uniqueVisitors"`
	PageViews       int64     `json:"pageViews"`
	SessionsStarted int64     `json:"sessionsStarted"`
	FormStarts      int64     `json:"formStarts"`
	FormSubmits     int64     `json:"formSubmits"`
	NewLeads        int64     `json:"newLeads"`
	IdentityLinks   int64     `json:"identityLinks"`
	ComputedAt      time.Time `json:"computedAt"`
}

// DailyIngestRollup tracks ingestion health per (tenant, property, UTC day).
type DailyIngestRollup struct {
	TenantID       string    `json:"tenantId"`
	PropertyID     string    `json:"propertyId"`
	Day            string    `json:"day"`
	EventsAccepted int64     `json:"eventsAccepted"`
	EventsRejected int64     `json:"eventsRejected"`
	LeadsCaptured  int64     `json:"leadsCaptured"`
	ComputedAt     time.Time `json:"computedAt"`
}

// RollupResult reports what a rollup run touched: the number of days
// processed and each day string, in order.
type RollupResult struct {
	DaysProcessed int      `json:"daysProcessed"`
	Days          []string `json:"days"`
}

// PropertySummary is one row of the dashboard summary materialized view:
// totals per (tenant, property) across all rolled-up days.
type PropertySummary struct {
	TenantID       string    `json:"tenantId"`
	PropertyID     string    `json:"propertyId"`
	Days           int64     `json:"days"`
	UniqueVisitors int64     `json:"uniqueVisitors"`
	PageViews      int64     `json:"pageViews"`
	FormSubmits    int64     `json:"formSubmits"`
	NewLeads       int64     `json:"newLeads"`
	FirstDay       string    `json:"firstDay"`
	LastDay        string    `json:"lastDay"`
	RefreshedAt    time.Time `json:"refreshedAt"`
}
