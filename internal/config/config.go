// Package config loads daemon settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/focuscage/internal/infra"
	"github.com/eliteGoblin/focusd/focuscage/internal/policy"
)

// Bus names accepted by the bus setting.
const (
	BusSession = "session"
	BusSystem  = "system"
)

// Interval backends accepted by the interval_backend setting.
const (
	IntervalAuto    = "auto"    // systemd timers when a manager is on the bus, else cron
	IntervalSystemd = "systemd" // systemd timers only
	IntervalCron    = "cron"    // in-process cron only
)

// FileName is the config file name inside the data directory.
const FileName = "config.yaml"

// Config holds daemon settings. Every field is optional in the file.
type Config struct {
	DataDir           string        `yaml:"data_dir"`
	LogPath           string        `yaml:"log_path"`
	HostsPath         string        `yaml:"hosts_path"`
	Bus               string        `yaml:"bus"`
	IntervalBackend   string        `yaml:"interval_backend"`
	UnitDir           string        `yaml:"unit_dir"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	EnforceInterval   time.Duration `yaml:"enforce_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Strict            StrictConfig  `yaml:"strict"`
}

// StrictConfig tunes the Strict unlock flow.
type StrictConfig struct {
	MaxUnlocks   int           `yaml:"max_unlocks"`
	Cooldown     time.Duration `yaml:"cooldown"`
	UnlockWindow time.Duration `yaml:"unlock_window"`
}

// Default returns the settings used when no file overrides them.
func Default(mode *ExecModeConfig) Config {
	return Config{
		DataDir:           mode.DataDir,
		LogPath:           mode.LogPath,
		HostsPath:         infra.DefaultHostsPath,
		Bus:               mode.Bus,
		IntervalBackend:   IntervalAuto,
		UnitDir:           mode.UnitDir,
		TickInterval:      30 * time.Second,
		EnforceInterval:   10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		Strict: StrictConfig{
			MaxUnlocks:   policy.DefaultStrictUnlocks,
			Cooldown:     policy.DefaultCooldown,
			UnlockWindow: policy.DefaultUnlockWindow,
		},
	}
}

// DefaultPath returns the config file location for mode.
func DefaultPath(mode *ExecModeConfig) string {
	return filepath.Join(mode.DataDir, FileName)
}

// Load reads path over the defaults for mode. A missing file yields the
// defaults.
func Load(path string, mode *ExecModeConfig) (Config, error) {
	cfg := Default(mode)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every offending key.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.Bus != BusSession && c.Bus != BusSystem {
		errs = append(errs, fmt.Errorf("bus must be %q or %q, got %q", BusSession, BusSystem, c.Bus))
	}
	switch c.IntervalBackend {
	case IntervalAuto, IntervalSystemd:
		if c.UnitDir == "" {
			errs = append(errs, fmt.Errorf("unit_dir must not be empty with interval_backend %q", c.IntervalBackend))
		}
	case IntervalCron:
	default:
		errs = append(errs, fmt.Errorf("interval_backend must be %q, %q or %q, got %q",
			IntervalAuto, IntervalSystemd, IntervalCron, c.IntervalBackend))
	}
	for key, d := range map[string]time.Duration{
		"tick_interval":        c.TickInterval,
		"enforce_interval":     c.EnforceInterval,
		"heartbeat_interval":   c.HeartbeatInterval,
		"strict.cooldown":      c.Strict.Cooldown,
		"strict.unlock_window": c.Strict.UnlockWindow,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if c.Strict.MaxUnlocks < 0 {
		errs = append(errs, fmt.Errorf("strict.max_unlocks must not be negative, got %d", c.Strict.MaxUnlocks))
	}
	return errors.Join(errs...)
}

// Policies builds the strictness registry with the configured Strict limits.
func (c Config) Policies() *policy.Registry {
	return policy.NewRegistryWithPolicies(
		policy.NewStandardPolicy(),
		policy.NewStrictPolicyWithLimits(c.Strict.MaxUnlocks, c.Strict.Cooldown, c.Strict.UnlockWindow),
		policy.NewLockedPolicy(),
	)
}
