package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/adapters/calendarsrc"
	"github.com/MirDochEgal555/Dashboard/internal/adapters/financesrc"
	"github.com/MirDochEgal555/Dashboard/internal/adapters/newssrc"
	"github.com/MirDochEgal555/Dashboard/internal/adapters/photossrc"
	"github.com/MirDochEgal555/Dashboard/internal/adapters/quotessrc"
	"github.com/MirDochEgal555/Dashboard/internal/adapters/sportssrc"
	"github.com/MirDochEgal555/Dashboard/internal/adapters/transitsrc"
	"github.com/MirDochEgal555/Dashboard/internal/adapters/weathersrc"
	"github.com/MirDochEgal555/Dashboard/internal/config"
	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
	"github.com/MirDochEgal555/Dashboard/internal/httpx"
	"github.com/MirDochEgal555/Dashboard/internal/location"
	"github.com/MirDochEgal555/Dashboard/internal/refresh"
	"github.com/MirDochEgal555/Dashboard/internal/store"
)

// TTL floors. A payload must outlive at least one missed refresh cycle, and
// local sources can afford longer windows than network ones.
const (
	networkTTLFloor   = 5 * time.Minute
	photosTTLFloor    = time.Hour
	heartbeatInterval = 30 * time.Second
	heartbeatTTLFloor = time.Minute
)

// buildJobs turns the validated widget blocks into refresh jobs. A widget
// that cannot be built comes back as a *refresh.ConfigError in errs and is
// simply not scheduled; the rest run normally.
func buildJobs(cfg *config.Config, env config.Env, st store.Store, httpClient *http.Client, locSvc *location.Service) ([]*refresh.Job, []error) {
	var (
		jobs []*refresh.Job
		errs []error
	)

	add := func(job *refresh.Job, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		jobs = append(jobs, job)
	}

	problems := cfg.ValidateWidgets()
	broken := func(name string) bool {
		err, ok := problems[name]
		if ok {
			errs = append(errs, &refresh.ConfigError{Job: name, Reason: err.Error()})
		}
		return ok
	}

	add(heartbeatJob(st))

	if cfg.Calendar.Enabled && !broken("calendar") {
		add(calendarJob(cfg, env, st, httpClient))
	}
	if cfg.Weather.Enabled && !broken("weather") {
		add(weatherJob(cfg, env, st, httpClient, locSvc))
	}
	if cfg.Transit.Enabled && !broken("transit") {
		add(transitJob(cfg, st, httpClient))
	}
	if cfg.News.Enabled && !broken("news") {
		add(newsJob(cfg, st, httpClient))
	}
	if cfg.Finance.Enabled && !broken("finance") {
		add(financeJob(cfg, env, st, httpClient))
	}
	if cfg.Sports.Enabled && !broken("sports") {
		add(sportsJob(cfg, st, httpClient))
	}
	if cfg.Photos.Enabled && !broken("photos") {
		add(photosJob(cfg, st))
	}
	if cfg.Quotes.Enabled && !broken("quotes") {
		add(quotesJob(cfg, env, st))
	}

	return jobs, errs
}

// cadence resolves a widget's interval, jitter and TTL against the global
// refresh defaults and the given TTL floor.
func cadence(cfg *config.Config, w config.Widget, ttlFloor time.Duration) (interval, jitter, ttl time.Duration) {
	interval = time.Duration(cfg.Refresh.IntervalMinutes) * time.Minute
	if w.IntervalMinutes > 0 {
		interval = time.Duration(w.IntervalMinutes) * time.Minute
	}
	jitter = time.Duration(cfg.Refresh.JitterMinutes) * time.Minute

	if w.TTLMinutes > 0 {
		return interval, jitter, time.Duration(w.TTLMinutes) * time.Minute
	}
	ttl = 2 * interval
	if ttl < ttlFloor {
		ttl = ttlFloor
	}
	if ttl <= interval {
		ttl = interval + time.Minute
	}
	return interval, jitter, ttl
}

// envelope is the common payload frame: what was refreshed, from which
// sources, and which sources were dropped this run.
func envelope(now time.Time, results []dashboard.SourceResult) map[string]any {
	sources := make([]string, 0, len(results))
	for _, r := range refresh.Successes(results) {
		sources = append(sources, r.Source)
	}
	sort.Strings(sources)
	errStrings := refresh.ErrorStrings(results)
	return map[string]any{
		"refreshed_at_utc": now.UTC(),
		"sources":          sources,
		"source_count":     len(sources),
		"errors":           errStrings,
		"error_count":      len(errStrings),
	}
}

type heartbeatSource struct{}

func (heartbeatSource) Name() string { return "heartbeat" }

func (heartbeatSource) Fetch(context.Context) (any, error) {
	hostname, _ := os.Hostname()
	return map[string]any{
		"hostname": hostname,
		"pid":      os.Getpid(),
	}, nil
}

// heartbeatJob proves the refresh loop and the store are alive even when all
// widgets are disabled.
func heartbeatJob(st store.Store) (*refresh.Job, error) {
	return refresh.NewJob(st, refresh.JobConfig{
		Name:     "heartbeat",
		CacheKey: "system.heartbeat",
		Interval: heartbeatInterval,
		TTL:      heartbeatTTLFloor + heartbeatInterval,
		Sources:  []dashboard.Source{heartbeatSource{}},
		Merge: func(now time.Time, results []dashboard.SourceResult) (any, error) {
			payload := envelope(now, results)
			for k, v := range refresh.Successes(results)[0].Value.(map[string]any) {
				payload[k] = v
			}
			return payload, nil
		},
	})
}

func calendarJob(cfg *config.Config, env config.Env, st store.Store, httpClient *http.Client) (*refresh.Job, error) {
	client := httpx.New("calendar", httpClient)

	var sources []dashboard.Source
	for _, s := range cfg.Calendar.Sources {
		switch s.Type {
		case "file":
			sources = append(sources, calendarsrc.NewFileSource(s.Name, expandHome(s.Path), env.Timezone))
		case "url":
			sources = append(sources, calendarsrc.NewURLSource(s.Name, s.URL, env.Timezone, client))
		}
	}

	interval, jitter, ttl := cadence(cfg, cfg.Calendar.Widget, networkTTLFloor)
	return refresh.NewJob(st, refresh.JobConfig{
		Name:     "calendar",
		CacheKey: "calendar.today",
		Interval: interval,
		Jitter:   jitter,
		TTL:      ttl,
		Sources:  sources,
		Merge: func(now time.Time, results []dashboard.SourceResult) (any, error) {
			var events []dashboard.CalendarEvent
			for _, r := range refresh.Successes(results) {
				batch, ok := r.Value.([]dashboard.CalendarEvent)
				if !ok {
					return nil, fmt.Errorf("source %s returned %T", r.Source, r.Value)
				}
				events = append(events, batch...)
			}
			calendarsrc.SortEvents(events)

			payload := envelope(now, results)
			payload["date"] = now.In(env.Timezone).Format("2006-01-02")
			payload["events"] = events
			payload["count"] = len(events)
			return payload, nil
		},
	})
}

func weatherJob(cfg *config.Config, env config.Env, st store.Store, httpClient *http.Client, locSvc *location.Service) (*refresh.Job, error) {
	src := weathersrc.New(httpx.New("weather", httpClient), locSvc, weathersrc.Config{
		Units:    cfg.Weather.Units,
		Timezone: env.Timezone.String(),
		Days:     cfg.Weather.ForecastDays,
	})

	interval, jitter, ttl := cadence(cfg, cfg.Weather.Widget, networkTTLFloor)
	return refresh.NewJob(st, refresh.JobConfig{
		Name:     "weather",
		CacheKey: "weather.snapshot",
		Interval: interval,
		Jitter:   jitter,
		TTL:      ttl,
		Sources:  []dashboard.Source{src},
		Merge:    singleValueMerge("snapshot"),
	})
}

func transitJob(cfg *config.Config, st store.Store, httpClient *http.Client) (*refresh.Job, error) {
	client := httpx.New("transit", httpClient)

	var sources []dashboard.Source
	for _, stop := range cfg.Transit.Stops {
		sources = append(sources, transitsrc.New(client, transitsrc.Config{
			BaseURL:  cfg.Transit.BaseURL,
			StopID:   stop.ID,
			StopName: stop.Name,
			Window:   time.Duration(stop.WindowMinutes) * time.Minute,
			Max:      stop.Max,
		}))
	}

	interval, jitter, ttl := cadence(cfg, cfg.Transit.Widget, networkTTLFloor)
	return refresh.NewJob(st, refresh.JobConfig{
		Name:     "transit",
		CacheKey: "transit.departures",
		Interval: interval,
		Jitter:   jitter,
		TTL:      ttl,
		Sources:  sources,
		Merge: func(now time.Time, results []dashboard.SourceResult) (any, error) {
			var departures []dashboard.Departure
			for _, r := range refresh.Successes(results) {
				batch, ok := r.Value.([]dashboard.Departure)
				if !ok {
					return nil, fmt.Errorf("source %s returned %T", r.Source, r.Value)
				}
				departures = append(departures, batch...)
			}
			sort.Slice(departures, func(i, j int) bool {
				return departures[i].Planned.Before(departures[j].Planned)
			})

			payload := envelope(now, results)
			payload["departures"] = departures
			payload["count"] = len(departures)
			return payload, nil
		},
	})
}

func newsJob(cfg *config.Config, st store.Store, httpClient *http.Client) (*refresh.Job, error) {
	var sources []dashboard.Source
	for _, feed := range cfg.News.Feeds {
		sources = append(sources, newssrc.NewFeedSource(feed.Name, feed.URL, httpClient))
	}

	max := cfg.News.Max
	if max <= 0 {
		max = 20
	}

	interval, jitter, ttl := cadence(cfg, cfg.News.Widget, networkTTLFloor)
	return refresh.NewJob(st, refresh.JobConfig{
		Name:     "news",
		CacheKey: "news.headlines",
		Interval: interval,
		Jitter:   jitter,
		TTL:      ttl,
		Sources:  sources,
		Merge: func(now time.Time, results []dashboard.SourceResult) (any, error) {
			var headlines []dashboard.Headline
			for _, r := range refresh.Successes(results) {
				batch, ok := r.Value.([]dashboard.Headline)
				if !ok {
					return nil, fmt.Errorf("source %s returned %T", r.Source, r.Value)
				}
				headlines = append(headlines, batch...)
			}
			newssrc.SortHeadlines(headlines)
			if len(headlines) > max {
				headlines = headlines[:max]
			}

			payload := envelope(now, results)
			payload["headlines"] = headlines
			payload["count"] = len(headlines)
			return payload, nil
		},
	})
}

func financeJob(cfg *config.Config, env config.Env, st store.Store, httpClient *http.Client) (*refresh.Job, error) {
	client := httpx.New("finance", httpClient)

	var src dashboard.Source
	switch cfg.Finance.Provider {
	case "alphavantage":
		if env.FinanceAPIKey == "" {
			return nil, &refresh.ConfigError{Job: "finance", Reason: "provider alphavantage requires FINANCE_API_KEY"}
		}
		src = financesrc.NewAlphaVantage(client, env.FinanceAPIKey, cfg.Finance.Symbols, "")
	default:
		src = financesrc.NewStooq(client, cfg.Finance.Symbols, "")
	}

	interval, jitter, ttl := cadence(cfg, cfg.Finance.Widget, networkTTLFloor)
	return refresh.NewJob(st, refresh.JobConfig{
		Name:     "finance",
		CacheKey: "finance.quotes",
		Interval: interval,
		Jitter:   jitter,
		TTL:      ttl,
		Sources:  []dashboard.Source{src},
		Merge:    singleValueMerge("quotes"),
	})
}

func sportsJob(cfg *config.Config, st store.Store, httpClient *http.Client) (*refresh.Job, error) {
	client := httpx.New("sports", httpClient)

	var sources []dashboard.Source
	for _, league := range cfg.Sports.Leagues {
		sources = append(sources, sportssrc.New(client, sportssrc.Config{
			League: league.League,
			Season: league.Season,
			Max:    cfg.Sports.Max,
		}))
	}

	max := cfg.Sports.Max
	if max <= 0 {
		max = 10
	}

	interval, jitter, ttl := cadence(cfg, cfg.Sports.Widget, networkTTLFloor)
	return refresh.NewJob(st, refresh.JobConfig{
		Name:     "sports",
		CacheKey: "sports.results",
		Interval: interval,
		Jitter:   jitter,
		TTL:      ttl,
		Sources:  sources,
		Merge: func(now time.Time, results []dashboard.SourceResult) (any, error) {
			var matches []dashboard.SportsResult
			for _, r := range refresh.Successes(results) {
				batch, ok := r.Value.([]dashboard.SportsResult)
				if !ok {
					return nil, fmt.Errorf("source %s returned %T", r.Source, r.Value)
				}
				matches = append(matches, batch...)
			}
			sort.Slice(matches, func(i, j int) bool {
				return matches[i].Kickoff.After(matches[j].Kickoff)
			})
			if len(matches) > max {
				matches = matches[:max]
			}

			payload := envelope(now, results)
			payload["results"] = matches
			payload["count"] = len(matches)
			return payload, nil
		},
	})
}

func photosJob(cfg *config.Config, st store.Store) (*refresh.Job, error) {
	interval, jitter, ttl := cadence(cfg, cfg.Photos.Widget, photosTTLFloor)
	return refresh.NewJob(st, refresh.JobConfig{
		Name:     "photos",
		CacheKey: "photos.index",
		Interval: interval,
		Jitter:   jitter,
		TTL:      ttl,
		Sources:  []dashboard.Source{photossrc.New(expandHome(cfg.Photos.Folder))},
		Merge: func(now time.Time, results []dashboard.SourceResult) (any, error) {
			items, ok := refresh.Successes(results)[0].Value.([]dashboard.PhotoItem)
			if !ok {
				return nil, fmt.Errorf("photos source returned unexpected type")
			}
			payload := envelope(now, results)
			payload["photos"] = items
			payload["count"] = len(items)
			return payload, nil
		},
	})
}

func quotesJob(cfg *config.Config, env config.Env, st store.Store) (*refresh.Job, error) {
	interval, jitter, ttl := cadence(cfg, cfg.Quotes.Widget, photosTTLFloor)
	return refresh.NewJob(st, refresh.JobConfig{
		Name:     "quotes",
		CacheKey: "quotes.list",
		Interval: interval,
		Jitter:   jitter,
		TTL:      ttl,
		Sources:  []dashboard.Source{quotessrc.New(expandHome(cfg.Quotes.Path), env.Timezone)},
		Merge: func(now time.Time, results []dashboard.SourceResult) (any, error) {
			quotes, ok := refresh.Successes(results)[0].Value.([]dashboard.Quote)
			if !ok {
				return nil, fmt.Errorf("quotes source returned unexpected type")
			}
			payload := envelope(now, results)
			payload["quotes"] = quotes
			payload["count"] = len(quotes)
			return payload, nil
		},
	})
}

// singleValueMerge wraps a single-source job's value in the envelope under
// the given field name.
func singleValueMerge(field string) refresh.MergeFunc {
	return func(now time.Time, results []dashboard.SourceResult) (any, error) {
		payload := envelope(now, results)
		payload[field] = refresh.Successes(results)[0].Value
		return payload, nil
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
