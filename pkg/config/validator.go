// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"fmt"
	"strings"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
)

// Validator validates configuration.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a configuration.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.ValidateWatchdog(&cfg.Watchdog); err != nil {
		return err
	}
	if err := v.ValidateCache(&cfg.Cache); err != nil {
		return err
	}
	if err := v.ValidateScheduler(&cfg.Scheduler); err != nil {
		return err
	}
	if err := v.ValidateLog(&cfg.Log); err != nil {
		return err
	}
	if err := v.ValidateMetrics(&cfg.Metrics); err != nil {
		return err
	}
	return nil
}

// ValidateWatchdog validates supervision settings.
func (v *Validator) ValidateWatchdog(cfg *WatchdogConfig) error {
	if cfg.TickInterval <= 0 {
		return &ValidationError{
			Field:   "watchdog.tick_interval",
			Value:   cfg.TickInterval,
			Message: "must be positive",
		}
	}
	if cfg.MaxTickTime <= 0 {
		return &ValidationError{
			Field:   "watchdog.max_tick_time",
			Value:   cfg.MaxTickTime,
			Message: "must be positive",
		}
	}
	if cfg.AvailabilityWindow <= 0 {
		return &ValidationError{
			Field:   "watchdog.availability_window",
			Value:   cfg.AvailabilityWindow,
			Message: "must be positive",
		}
	}
	return nil
}

// ValidateCache validates cache settings.
func (v *Validator) ValidateCache(cfg *CacheConfig) error {
	if cfg.TickInterval < 0 {
		return &ValidationError{
			Field:   "cache.tick_interval",
			Value:   cfg.TickInterval,
			Message: "must be non-negative",
		}
	}
	return nil
}

// ValidateScheduler validates scheduler settings.
func (v *Validator) ValidateScheduler(cfg *SchedulerConfig) error {
	if cfg.Workers < 0 {
		return &ValidationError{
			Field:   "scheduler.workers",
			Value:   cfg.Workers,
			Message: "must be non-negative",
		}
	}
	if cfg.QueueSize < 0 {
		return &ValidationError{
			Field:   "scheduler.queue_size",
			Value:   cfg.QueueSize,
			Message: "must be non-negative",
		}
	}
	return nil
}

// ValidateLog validates logging settings.
func (v *Validator) ValidateLog(cfg *LogConfig) error {
	if !oneOf(cfg.Level, validLogLevels) {
		return &ValidationError{
			Field:   "log.level",
			Value:   cfg.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogLevels, ", ")),
		}
	}
	if !oneOf(cfg.Format, validLogFormats) {
		return &ValidationError{
			Field:   "log.format",
			Value:   cfg.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogFormats, ", ")),
		}
	}
	return nil
}

// ValidateMetrics validates metrics settings.
func (v *Validator) ValidateMetrics(cfg *MetricsConfig) error {
	if cfg.Enabled && cfg.Addr == "" {
		return &ValidationError{
			Field:   "metrics.addr",
			Message: "must be set when metrics are enabled",
		}
	}
	return nil
}

func oneOf(value string, valid []string) bool {
	for _, v := range valid {
		if strings.EqualFold(value, v) {
			return true
		}
	}
	return false
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error for %s: %s (got: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}
