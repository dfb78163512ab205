// Package config loads the dashboard's layout from YAML and its deployment
// settings from the environment. Widget blocks that fail validation disable
// only their own job; global problems are fatal.
package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

var validate = validator.New()

// Env holds deployment settings sourced from the environment.
type Env struct {
	Addr          string
	DBPath        string
	ConfigPath    string
	Timezone      *time.Location
	HTTPTimeout   time.Duration
	FinanceAPIKey string
	GoogleAPIKey  string
}

// LoadEnv reads deployment settings with sensible defaults.
func LoadEnv() (Env, error) {
	env := Env{
		Addr:          getenvDefault("DASHBOARD_ADDR", ":8080"),
		DBPath:        getenvDefault("DASHBOARD_DB_PATH", filepath.Join(xdg.DataHome, "dashboard", "dashboard.db")),
		ConfigPath:    os.Getenv("DASHBOARD_CONFIG_PATH"),
		FinanceAPIKey: os.Getenv("FINANCE_API_KEY"),
		GoogleAPIKey:  os.Getenv("GOOGLE_GEOCODING_API_KEY"),
	}

	tzName := getenvDefault("DASHBOARD_TIMEZONE", "Europe/Berlin")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return Env{}, fmt.Errorf("invalid DASHBOARD_TIMEZONE %q: %w", tzName, err)
	}
	env.Timezone = tz

	timeoutStr := getenvDefault("DASHBOARD_HTTP_TIMEOUT", "15s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return Env{}, fmt.Errorf("invalid DASHBOARD_HTTP_TIMEOUT %q: %w", timeoutStr, err)
	}
	env.HTTPTimeout = timeout

	return env, nil
}

// Refresh carries the global refresh defaults; widgets may override the
// cadence per block.
type Refresh struct {
	IntervalMinutes int   `yaml:"interval_minutes" validate:"min=1"`
	JitterMinutes   int   `yaml:"jitter_minutes" validate:"min=0"`
	RunOnStart      *bool `yaml:"run_on_start"`
}

// Widget is the shared part of every widget block.
type Widget struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes" validate:"min=0"`
	TTLMinutes      int  `yaml:"ttl_minutes" validate:"min=0"`
}

// CalendarSource is one ICS input, either a local file or a URL.
type CalendarSource struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=file url"`
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

type CalendarWidget struct {
	Widget  `yaml:",inline"`
	Sources []CalendarSource `yaml:"sources" validate:"dive"`
}

type WeatherWidget struct {
	Widget       `yaml:",inline"`
	Units        string `yaml:"units" validate:"omitempty,oneof=metric imperial"`
	ForecastDays int    `yaml:"forecast_days" validate:"min=0,max=10"`
}

// TransitStop is one departure board.
type TransitStop struct {
	ID            string `yaml:"id" validate:"required"`
	Name          string `yaml:"name"`
	WindowMinutes int    `yaml:"window_minutes" validate:"min=0"`
	Max           int    `yaml:"max" validate:"min=0"`
}

type TransitWidget struct {
	Widget  `yaml:",inline"`
	BaseURL string        `yaml:"base_url"`
	Stops   []TransitStop `yaml:"stops" validate:"dive"`
}

// NewsFeed is one RSS or Atom feed.
type NewsFeed struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required"`
}

type NewsWidget struct {
	Widget `yaml:",inline"`
	Feeds  []NewsFeed `yaml:"feeds" validate:"dive"`
	Max    int        `yaml:"max" validate:"min=0"`
}

type FinanceWidget struct {
	Widget   `yaml:",inline"`
	Provider string   `yaml:"provider" validate:"omitempty,oneof=stooq alphavantage"`
	Symbols  []string `yaml:"symbols"`
}

// SportsLeague is one league season to follow.
type SportsLeague struct {
	League string `yaml:"league" validate:"required"`
	Season string `yaml:"season" validate:"required"`
}

type SportsWidget struct {
	Widget  `yaml:",inline"`
	Leagues []SportsLeague `yaml:"leagues" validate:"dive"`
	Max     int            `yaml:"max" validate:"min=0"`
}

type PhotosWidget struct {
	Widget `yaml:",inline"`
	Folder string `yaml:"folder"`
}

type QuotesWidget struct {
	Widget `yaml:",inline"`
	Path   string `yaml:"path"`
}

// LocationConfig tunes the location service tiers.
type LocationConfig struct {
	Mode         string `yaml:"mode" validate:"omitempty,oneof=auto fixed"`
	FallbackCity string `yaml:"fallback_city"`
}

// Config is the full YAML layout document.
type Config struct {
	Refresh  Refresh        `yaml:"refresh"`
	Location LocationConfig `yaml:"location"`

	Calendar CalendarWidget `yaml:"calendar"`
	Weather  WeatherWidget  `yaml:"weather"`
	Transit  TransitWidget  `yaml:"transit"`
	News     NewsWidget     `yaml:"news"`
	Finance  FinanceWidget  `yaml:"finance"`
	Sports   SportsWidget   `yaml:"sports"`
	Photos   PhotosWidget   `yaml:"photos"`
	Quotes   QuotesWidget   `yaml:"quotes"`
}

// RunOnStart reports whether jobs fire immediately at startup. Defaults to
// true so a fresh kiosk shows data without waiting a full interval.
func (c *Config) RunOnStart() bool {
	if c.Refresh.RunOnStart == nil {
		return true
	}
	return *c.Refresh.RunOnStart
}

// DefaultConfigPath is where the layout lives unless DASHBOARD_CONFIG_PATH
// points elsewhere.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "dashboard", "config.yaml")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the layout from path, falling back to the embedded defaults
// when no file exists yet (and writing them out for the user to edit).
func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := writeDefaults(path); err != nil {
				// Non-fatal: just use embedded defaults.
				return defaults, nil
			}
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Refresh.IntervalMinutes == 0 {
		cfg.Refresh = defaults.Refresh
	}

	if err := validate.Struct(cfg.Refresh); err != nil {
		return nil, fmt.Errorf("refresh settings: %w", err)
	}
	return &cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

// ValidateWidgets checks every enabled widget block and returns one error
// per broken block, keyed by widget name. A broken block disables only its
// own job.
func (c *Config) ValidateWidgets() map[string]error {
	problems := make(map[string]error)

	check := func(name string, w Widget, block any, extra func() error) {
		if !w.Enabled {
			return
		}
		if err := validate.Struct(block); err != nil {
			problems[name] = err
			return
		}
		if w.TTLMinutes > 0 && w.IntervalMinutes > 0 && w.TTLMinutes <= w.IntervalMinutes {
			problems[name] = fmt.Errorf("ttl_minutes (%d) must exceed interval_minutes (%d)", w.TTLMinutes, w.IntervalMinutes)
			return
		}
		if extra != nil {
			if err := extra(); err != nil {
				problems[name] = err
			}
		}
	}

	check("calendar", c.Calendar.Widget, c.Calendar, func() error {
		if len(c.Calendar.Sources) == 0 {
			return fmt.Errorf("at least one source is required")
		}
		for _, s := range c.Calendar.Sources {
			switch s.Type {
			case "file":
				if s.Path == "" {
					return fmt.Errorf("source %q: path is required for type file", s.Name)
				}
			case "url":
				if err := checkHTTPURL(s.URL); err != nil {
					return fmt.Errorf("source %q: %w", s.Name, err)
				}
			}
		}
		return nil
	})

	check("weather", c.Weather.Widget, c.Weather, nil)

	check("transit", c.Transit.Widget, c.Transit, func() error {
		if len(c.Transit.Stops) == 0 {
			return fmt.Errorf("at least one stop is required")
		}
		return checkHTTPURL(c.Transit.BaseURL)
	})

	check("news", c.News.Widget, c.News, func() error {
		if len(c.News.Feeds) == 0 {
			return fmt.Errorf("at least one feed is required")
		}
		for _, f := range c.News.Feeds {
			if err := checkHTTPURL(f.URL); err != nil {
				return fmt.Errorf("feed %q: %w", f.Name, err)
			}
		}
		return nil
	})

	check("finance", c.Finance.Widget, c.Finance, func() error {
		if len(c.Finance.Symbols) == 0 {
			return fmt.Errorf("at least one symbol is required")
		}
		return nil
	})

	check("sports", c.Sports.Widget, c.Sports, func() error {
		if len(c.Sports.Leagues) == 0 {
			return fmt.Errorf("at least one league is required")
		}
		return nil
	})

	check("photos", c.Photos.Widget, c.Photos, func() error {
		if c.Photos.Folder == "" {
			return fmt.Errorf("folder is required")
		}
		return nil
	})

	check("quotes", c.Quotes.Widget, c.Quotes, func() error {
		if c.Quotes.Path == "" {
			return fmt.Errorf("path is required")
		}
		return nil
	})

	return problems
}

func checkHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "webcal":
		return nil
	default:
		return fmt.Errorf("url scheme must be http, https or webcal, got %q", u.Scheme)
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
