package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/watercache/watercache/pkg/errors"
)

// EnvPrefix is the prefix for all environment variables.
const EnvPrefix = "WATERCACHE_"

// Load loads configuration from a specific file path. Fields missing from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("config validation failed", err)
	}
	return cfg, nil
}

// LoadWithOverrides loads config and applies environment variable
// overrides. An empty path starts from the defaults.
func LoadWithOverrides(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = read(path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("config validation failed", err)
	}
	return cfg, nil
}

// Validate validates the configuration with the default validator.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.ConfigError("failed to encode config", err)
	}
	return data, nil
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to read config file: %s", path), err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to parse config file: %s", path), err)
	}
	return cfg, nil
}

// applyEnvOverrides applies WATERCACHE_* variables on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"WATCHDOG_TICK_INTERVAL", &cfg.Watchdog.TickInterval},
		{"WATCHDOG_MAX_TICK_TIME", &cfg.Watchdog.MaxTickTime},
		{"WATCHDOG_AVAILABILITY_WINDOW", &cfg.Watchdog.AvailabilityWindow},
		{"CACHE_TICK_INTERVAL", &cfg.Cache.TickInterval},
	}
	for _, d := range durations {
		val, ok := lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return envError(d.key, err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SCHEDULER_WORKERS", &cfg.Scheduler.Workers},
		{"SCHEDULER_QUEUE_SIZE", &cfg.Scheduler.QueueSize},
	}
	for _, i := range ints {
		val, ok := lookup(i.key)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return envError(i.key, err)
		}
		*i.dst = parsed
	}

	if val, ok := lookup("METRICS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return envError("METRICS_ENABLED", err)
		}
		cfg.Metrics.Enabled = enabled
	}

	texts := []struct {
		key string
		dst *string
	}{
		{"WATCHDOG_ID", &cfg.Watchdog.ID},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"METRICS_ADDR", &cfg.Metrics.Addr},
		{"METRICS_NAMESPACE", &cfg.Metrics.Namespace},
	}
	for _, s := range texts {
		if val, ok := lookup(s.key); ok {
			*s.dst = val
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func envError(key string, err error) error {
	return errors.ConfigError(fmt.Sprintf("invalid value for %s%s", EnvPrefix, key), err).
		WithContext("env", EnvPrefix+key)
}
