// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config provides configuration management for watercache.
//
// Configuration Loading Order (later overrides earlier):
// 1. Defaults (hardcoded)
// 2. Config file given with --config
// 3. Environment Variables: WATERCACHE_*
package config

import (
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Cache     CacheConfig     `yaml:"cache"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// WatchdogConfig contains supervision settings.
type WatchdogConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	MaxTickTime  time.Duration `yaml:"max_tick_time"`
	ID           string        `yaml:"id,omitempty"` // generated when empty

	// AvailabilityWindow bounds the stall history summarised on shutdown.
	AvailabilityWindow time.Duration `yaml:"availability_window"`
}

// CacheConfig contains cache settings.
type CacheConfig struct {
	// TickInterval runs the cache on its own unsupervised loop when
	// positive. Zero hands ticking to the watchdog.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// SchedulerConfig contains delayed-task scheduler settings.
type SchedulerConfig struct {
	Workers   int `yaml:"workers"`    // 0 dispatches inline
	QueueSize int `yaml:"queue_size"` // 0 uses the pool default
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}
