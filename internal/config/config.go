// Package config loads the daemon's YAML configuration, the same
// struct-of-structs-with-yaml-tags shape the teacher's internal/cli
// package uses for its own Config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "10s" or "5m" parse
// the way operators expect. yaml.v3 decodes duration strings into a
// plain time.Duration but rejects a bare integer there; this type
// accepts both.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("10s") or a bare
// integer number of nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string or integer nanoseconds")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the schedulerd configuration file shape.
type Config struct {
	Scheduler struct {
		Name              string   `yaml:"name"`
		ExecutorThreads   int      `yaml:"executor_threads"`
		PollingInterval   Duration `yaml:"polling_interval"`
		HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	} `yaml:"scheduler"`

	Store struct {
		Driver string `yaml:"driver"` // "sqlite" or "memory"
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Default returns a Config with every documented default from the
// Configuration surface table applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Scheduler.ExecutorThreads = 10
	cfg.Scheduler.PollingInterval = Duration(10 * time.Second)
	cfg.Scheduler.HeartbeatInterval = Duration(5 * time.Minute)
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = "scheduler.db"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090
	return cfg
}

// Load reads and parses a YAML config file at path, applying it over
// the documented defaults so a partial file is valid.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
