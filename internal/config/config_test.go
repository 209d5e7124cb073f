package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
tick_interval: 10s
default_focus_minutes: 50
log_mode: prod
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TickInterval != 10*time.Second {
		t.Fatalf("tick = %v", cfg.TickInterval)
	}
	if cfg.DefaultFocusMinutes != 50 {
		t.Fatalf("focus minutes = %d", cfg.DefaultFocusMinutes)
	}
	if cfg.LogMode != "prod" {
		t.Fatalf("log mode = %q", cfg.LogMode)
	}
	// Untouched fields keep their defaults.
	if cfg.MergeWindow != 15*time.Minute {
		t.Fatalf("merge window = %v", cfg.MergeWindow)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "tick_interval: [not a duration")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []string{
		"tick_interval: -5s",
		"scheduler_interval: 0s",
		"idle_threshold: 0s",
		"merge_window: 0s",
		"default_focus_minutes: 0",
	}
	for _, content := range cases {
		path := writeConfig(t, content)
		if _, err := Load(path); err == nil {
			t.Errorf("config %q accepted", content)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Fatalf("path = %q", path)
	}
}
