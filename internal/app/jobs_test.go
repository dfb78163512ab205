package app

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/config"
	"github.com/MirDochEgal555/Dashboard/internal/httpx"
	"github.com/MirDochEgal555/Dashboard/internal/location"
	"github.com/MirDochEgal555/Dashboard/internal/refresh"
	"github.com/MirDochEgal555/Dashboard/internal/store"
)

func testEnv(t *testing.T) config.Env {
	t.Helper()
	tz, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}
	return config.Env{
		Addr:        ":0",
		Timezone:    tz,
		HTTPTimeout: time.Second,
	}
}

func testDeps(t *testing.T) (store.Store, *http.Client, *location.Service) {
	t.Helper()
	st := store.NewMemoryStore()
	client := &http.Client{Timeout: time.Second}
	locSvc := location.NewService(st, httpx.New("location-test", client), location.Config{Mode: "fixed", FallbackCity: "Stuttgart"})
	return st, client, locSvc
}

func baseConfig() *config.Config {
	return &config.Config{
		Refresh: config.Refresh{IntervalMinutes: 15, JitterMinutes: 2},
	}
}

func jobNames(jobs []*refresh.Job) []string {
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func TestBuildJobsAlwaysIncludesHeartbeat(t *testing.T) {
	st, client, locSvc := testDeps(t)

	jobs, errs := buildJobs(baseConfig(), testEnv(t), st, client, locSvc)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(jobs) != 1 || jobs[0].Name() != "heartbeat" {
		t.Fatalf("expected only the heartbeat job, got %v", jobNames(jobs))
	}
	if jobs[0].CacheKey() != "system.heartbeat" {
		t.Fatalf("unexpected heartbeat cache key: %q", jobs[0].CacheKey())
	}
}

func TestBuildJobsBrokenWidgetDisablesOnlyItself(t *testing.T) {
	st, client, locSvc := testDeps(t)

	cfg := baseConfig()
	cfg.Weather.Enabled = true
	cfg.News.Enabled = true // no feeds: invalid

	jobs, errs := buildJobs(cfg, testEnv(t), st, client, locSvc)

	if len(errs) != 1 {
		t.Fatalf("expected exactly one config error, got %v", errs)
	}
	var cfgErr *refresh.ConfigError
	if !errors.As(errs[0], &cfgErr) || cfgErr.Job != "news" {
		t.Fatalf("expected a news ConfigError, got %v", errs[0])
	}

	names := jobNames(jobs)
	if len(names) != 2 || names[0] != "heartbeat" || names[1] != "weather" {
		t.Fatalf("expected heartbeat+weather to survive, got %v", names)
	}
}

func TestBuildJobsAlphaVantageNeedsKey(t *testing.T) {
	st, client, locSvc := testDeps(t)

	cfg := baseConfig()
	cfg.Finance.Enabled = true
	cfg.Finance.Provider = "alphavantage"
	cfg.Finance.Symbols = []string{"MSFT"}

	env := testEnv(t)
	_, errs := buildJobs(cfg, env, st, client, locSvc)
	if len(errs) != 1 {
		t.Fatalf("expected a config error without FINANCE_API_KEY, got %v", errs)
	}

	env.FinanceAPIKey = "demo"
	jobs, errs := buildJobs(cfg, env, st, client, locSvc)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors with a key present: %v", errs)
	}
	names := jobNames(jobs)
	if len(names) != 2 || names[1] != "finance" {
		t.Fatalf("expected the finance job, got %v", names)
	}
}

func TestCadenceDefaultsAndOverrides(t *testing.T) {
	cfg := baseConfig()

	interval, jitter, ttl := cadence(cfg, config.Widget{}, networkTTLFloor)
	if interval != 15*time.Minute || jitter != 2*time.Minute {
		t.Fatalf("expected global defaults, got %v/%v", interval, jitter)
	}
	if ttl != 30*time.Minute {
		t.Fatalf("expected ttl = 2x interval, got %v", ttl)
	}

	interval, _, ttl = cadence(cfg, config.Widget{IntervalMinutes: 60, TTLMinutes: 240}, networkTTLFloor)
	if interval != time.Hour || ttl != 4*time.Hour {
		t.Fatalf("expected per-widget overrides, got %v/%v", interval, ttl)
	}

	// A short cadence is pulled up to the floor.
	interval, _, ttl = cadence(cfg, config.Widget{IntervalMinutes: 1}, networkTTLFloor)
	if interval != time.Minute || ttl != networkTTLFloor {
		t.Fatalf("expected the ttl floor, got %v/%v", interval, ttl)
	}
}
