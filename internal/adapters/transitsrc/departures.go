// Package transitsrc provides a departures source for transport.rest-shaped
// APIs.
package transitsrc

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
	"github.com/MirDochEgal555/Dashboard/internal/httpx"
)

// Config identifies one stop to watch.
type Config struct {
	// BaseURL of the API, e.g. "https://v6.db.transport.rest".
	BaseURL string

	// StopID is the provider's stop identifier.
	StopID string

	// StopName is the display name stamped on each departure.
	StopName string

	// Window is how far ahead to look.
	Window time.Duration

	// Max caps the number of departures returned.
	Max int
}

// Source fetches upcoming departures for one stop.
type Source struct {
	name   string
	client *httpx.Client
	cfg    Config
}

// New creates a departures source for one stop.
func New(client *httpx.Client, cfg Config) *Source {
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Minute
	}
	if cfg.Max <= 0 {
		cfg.Max = 8
	}
	name := cfg.StopName
	if name == "" {
		name = cfg.StopID
	}
	return &Source{name: "transit:" + name, client: client, cfg: cfg}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Fetch(ctx context.Context) (any, error) {
	values := url.Values{}
	values.Set("duration", strconv.Itoa(int(s.cfg.Window.Minutes())))
	values.Set("results", strconv.Itoa(s.cfg.Max))

	var payload struct {
		Departures []struct {
			When        *string `json:"when"` // null when cancelled
			PlannedWhen string  `json:"plannedWhen"`
			Delay       *int    `json:"delay"` // seconds, null when unknown
			Platform    string  `json:"platform"`
			Direction   string  `json:"direction"`
			Line        struct {
				Name string `json:"name"`
			} `json:"line"`
		} `json:"departures"`
	}

	reqURL := fmt.Sprintf("%s/stops/%s/departures?%s", s.cfg.BaseURL, url.PathEscape(s.cfg.StopID), values.Encode())
	if err := s.client.GetJSON(ctx, reqURL, &payload); err != nil {
		return nil, err
	}

	departures := make([]dashboard.Departure, 0, len(payload.Departures))
	for _, d := range payload.Departures {
		if d.When == nil {
			// Cancelled departures carry no useful board entry.
			continue
		}
		planned, err := time.Parse(time.RFC3339, d.PlannedWhen)
		if err != nil {
			return nil, fmt.Errorf("%w: bad plannedWhen %q", dashboard.ErrMalformedResponse, d.PlannedWhen)
		}

		var delayMin int
		if d.Delay != nil {
			delayMin = *d.Delay / 60
		}

		departures = append(departures, dashboard.Departure{
			Line:      d.Line.Name,
			Direction: d.Direction,
			Stop:      s.cfg.StopName,
			Planned:   planned,
			DelayMin:  delayMin,
			Platform:  d.Platform,
		})
	}

	sort.Slice(departures, func(i, j int) bool {
		return departures[i].Planned.Before(departures[j].Planned)
	})
	if len(departures) > s.cfg.Max {
		departures = departures[:s.cfg.Max]
	}
	return departures, nil
}
