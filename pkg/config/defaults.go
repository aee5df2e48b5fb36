// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package config

import (
	"time"
)

// DefaultConfig returns the default configuration.
// These values are used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		Watchdog: DefaultWatchdogConfig(),
		Log:      DefaultLogConfig(),
		Metrics:  DefaultMetricsConfig(),
	}
}

// DefaultLogConfig returns default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultWatchdogConfig returns default supervision settings.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		TickInterval: time.Second,
		MaxTickTime:  5 * time.Second,

		AvailabilityWindow: 24 * time.Hour,
	}
}

// DefaultMetricsConfig returns default metrics settings. The endpoint is off by default.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9090",
		Namespace: "watercache",
	}
}
