// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

package config

import (
	"fmt"

	"github.com/funnelgrid/funnelgrid/internal/validation"
)

// Validate checks that the configuration is complete and internally
// consistent. Struct tags cover range checks; the hand-written rules below
// cover cross-field constraints the tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateRollup(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive")
	}
	return nil
}

func (c *Config) validateRollup() error {
	if c.Rollup.DefaultPropertyID == "" {
		return fmt.Errorf("rollup.default_property_id must not be empty")
	}
	if c.Rollup.ScheduleEnabled && c.Rollup.ScheduleInterval <= 0 {
		return fmt.Errorf("rollup.schedule_interval must be positive when the scheduler is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "json", "console":
		return nil
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
}
