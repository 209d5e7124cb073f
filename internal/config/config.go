package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the engine tunables. Values a user may change at runtime
// (target durations, idle action) live in the settings table instead.
type Config struct {
	LogMode string `yaml:"log_mode"`
	DBPath  string `yaml:"db_path"`

	// Tracking loop tick. Samples the foreground window once per tick.
	TickInterval time.Duration `yaml:"tick_interval"`
	// Scheduled-session evaluation cadence.
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`
	// System idle poll cadence.
	IdlePollInterval time.Duration `yaml:"idle_poll_interval"`
	// Idle time after which the system counts as inactive.
	IdleThreshold time.Duration `yaml:"idle_threshold"`

	// Samples with the same signature within this window merge into one
	// activity row.
	MergeWindow time.Duration `yaml:"merge_window"`

	// Fallback session lengths when no prior entry exists to inherit from.
	DefaultFocusMinutes int `yaml:"default_focus_minutes"`
	DefaultBreakMinutes int `yaml:"default_break_minutes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogMode:             "dev",
		TickInterval:        5 * time.Second,
		SchedulerInterval:   time.Minute,
		IdlePollInterval:    10 * time.Second,
		IdleThreshold:       5 * time.Minute,
		MergeWindow:         15 * time.Minute,
		DefaultFocusMinutes: 25,
		DefaultBreakMinutes: 15,
	}
}

// UnmarshalYAML decodes durations from strings like "5s" or "15m"; yaml.v3
// has no native time.Duration support.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		LogMode             *string `yaml:"log_mode"`
		DBPath              *string `yaml:"db_path"`
		TickInterval        *string `yaml:"tick_interval"`
		SchedulerInterval   *string `yaml:"scheduler_interval"`
		IdlePollInterval    *string `yaml:"idle_poll_interval"`
		IdleThreshold       *string `yaml:"idle_threshold"`
		MergeWindow         *string `yaml:"merge_window"`
		DefaultFocusMinutes *int    `yaml:"default_focus_minutes"`
		DefaultBreakMinutes *int    `yaml:"default_break_minutes"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.LogMode != nil {
		c.LogMode = *raw.LogMode
	}
	if raw.DBPath != nil {
		c.DBPath = *raw.DBPath
	}
	if raw.DefaultFocusMinutes != nil {
		c.DefaultFocusMinutes = *raw.DefaultFocusMinutes
	}
	if raw.DefaultBreakMinutes != nil {
		c.DefaultBreakMinutes = *raw.DefaultBreakMinutes
	}

	durations := []struct {
		key string
		in  *string
		out *time.Duration
	}{
		{"tick_interval", raw.TickInterval, &c.TickInterval},
		{"scheduler_interval", raw.SchedulerInterval, &c.SchedulerInterval},
		{"idle_poll_interval", raw.IdlePollInterval, &c.IdlePollInterval},
		{"idle_threshold", raw.IdleThreshold, &c.IdleThreshold},
		{"merge_window", raw.MergeWindow, &c.MergeWindow},
	}
	for _, d := range durations {
		if d.in == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.in)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.out = parsed
	}
	return nil
}

// Load reads the YAML config at path, layering it over Default. A missing
// file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TickInterval <= 0 {
		return errors.New("tick_interval must be positive")
	}
	if c.SchedulerInterval <= 0 {
		return errors.New("scheduler_interval must be positive")
	}
	if c.IdleThreshold <= 0 {
		return errors.New("idle_threshold must be positive")
	}
	if c.MergeWindow <= 0 {
		return errors.New("merge_window must be positive")
	}
	if c.DefaultFocusMinutes <= 0 || c.DefaultBreakMinutes <= 0 {
		return errors.New("default session minutes must be positive")
	}
	return nil
}

// DefaultPath returns ~/.config/lightbeam/config.yaml
func DefaultPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "lightbeam", "config.yaml"), nil
}
