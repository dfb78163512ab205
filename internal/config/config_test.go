package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Refresh.IntervalMinutes != 15 {
		t.Fatalf("unexpected default interval: %d", cfg.Refresh.IntervalMinutes)
	}
	if !cfg.RunOnStart() {
		t.Fatal("run_on_start must default to true")
	}
	if problems := cfg.ValidateWidgets(); len(problems) != 0 {
		t.Fatalf("embedded defaults must validate cleanly, got %v", problems)
	}
}

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard", "config.yaml")
	if _, err := Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults written to %s: %v", path, err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "refresh: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for unparsable YAML")
	}
}

func TestBrokenWidgetDisablesOnlyItself(t *testing.T) {
	path := writeConfig(t, `
refresh:
  interval_minutes: 10
weather:
  enabled: true
news:
  enabled: true
  feeds:
    - name: feedless
      url: "ftp://example.org/feed"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	problems := cfg.ValidateWidgets()
	if _, ok := problems["news"]; !ok {
		t.Fatalf("expected the news block to be flagged, got %v", problems)
	}
	if _, ok := problems["weather"]; ok {
		t.Fatalf("weather must not be affected by a broken news block, got %v", problems)
	}
	if len(problems) != 1 {
		t.Fatalf("expected exactly one problem, got %v", problems)
	}
}

func TestTTLMustExceedInterval(t *testing.T) {
	path := writeConfig(t, `
refresh:
  interval_minutes: 10
weather:
  enabled: true
  interval_minutes: 15
  ttl_minutes: 15
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := cfg.ValidateWidgets()["weather"]; !ok {
		t.Fatal("expected ttl == interval to be rejected")
	}
}

func TestDisabledWidgetsAreNotValidated(t *testing.T) {
	path := writeConfig(t, `
refresh:
  interval_minutes: 10
photos:
  enabled: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if problems := cfg.ValidateWidgets(); len(problems) != 0 {
		t.Fatalf("disabled blocks must be skipped, got %v", problems)
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("DASHBOARD_ADDR", "")
	t.Setenv("DASHBOARD_TIMEZONE", "")
	t.Setenv("DASHBOARD_HTTP_TIMEOUT", "")

	env, err := LoadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if env.Addr != ":8080" {
		t.Fatalf("unexpected default addr: %q", env.Addr)
	}
	if env.Timezone.String() != "Europe/Berlin" {
		t.Fatalf("unexpected default timezone: %v", env.Timezone)
	}
}

func TestLoadEnvRejectsBadTimezone(t *testing.T) {
	t.Setenv("DASHBOARD_TIMEZONE", "Mars/Olympus")
	if _, err := LoadEnv(); err == nil {
		t.Fatal("expected an error for an unknown timezone")
	}
}
