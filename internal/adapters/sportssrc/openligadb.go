// Package sportssrc provides the OpenLigaDB match results source.
package sportssrc

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
	"github.com/MirDochEgal555/Dashboard/internal/httpx"
)

const defaultOpenLigaURL = "https://api.openligadb.de"

// endResultTypeID marks the final score among a match's result entries.
const endResultTypeID = 2

// Config identifies one league season.
type Config struct {
	// League is the OpenLigaDB shortcut, e.g. "bl1".
	League string

	// Season is the starting year, e.g. "2025".
	Season string

	// Max caps the number of results returned.
	Max int

	// BaseURL overrides the API endpoint for tests.
	BaseURL string
}

// Source fetches finished matches for one league from OpenLigaDB.
type Source struct {
	name    string
	baseURL string
	client  *httpx.Client
	cfg     Config
}

// New creates an OpenLigaDB source.
func New(client *httpx.Client, cfg Config) *Source {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenLigaURL
	}
	if cfg.Max <= 0 {
		cfg.Max = 10
	}
	return &Source{
		name:    "openligadb:" + cfg.League,
		baseURL: baseURL,
		client:  client,
		cfg:     cfg,
	}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Fetch(ctx context.Context) (any, error) {
	var matches []struct {
		DateTimeUTC string `json:"matchDateTimeUTC"`
		IsFinished  bool   `json:"matchIsFinished"`
		Team1       struct {
			Name string `json:"teamName"`
		} `json:"team1"`
		Team2 struct {
			Name string `json:"teamName"`
		} `json:"team2"`
		Results []struct {
			TypeID     int `json:"resultTypeID"`
			GoalsTeam1 int `json:"pointsTeam1"`
			GoalsTeam2 int `json:"pointsTeam2"`
		} `json:"matchResults"`
	}

	reqURL := fmt.Sprintf("%s/getmatchdata/%s/%s", s.baseURL, url.PathEscape(s.cfg.League), url.PathEscape(s.cfg.Season))
	if err := s.client.GetJSON(ctx, reqURL, &matches); err != nil {
		return nil, err
	}

	results := make([]dashboard.SportsResult, 0, len(matches))
	for _, m := range matches {
		if !m.IsFinished || len(m.Results) == 0 {
			continue
		}
		kickoff, err := time.Parse(time.RFC3339, m.DateTimeUTC)
		if err != nil {
			return nil, fmt.Errorf("%w: bad matchDateTimeUTC %q", dashboard.ErrMalformedResponse, m.DateTimeUTC)
		}

		// Prefer the declared end result; fall back to the last entry.
		score := m.Results[len(m.Results)-1]
		for _, r := range m.Results {
			if r.TypeID == endResultTypeID {
				score = r
				break
			}
		}

		results = append(results, dashboard.SportsResult{
			League:    s.cfg.League,
			HomeTeam:  m.Team1.Name,
			AwayTeam:  m.Team2.Name,
			HomeGoals: score.GoalsTeam1,
			AwayGoals: score.GoalsTeam2,
			Kickoff:   kickoff,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Kickoff.After(results[j].Kickoff)
	})
	if len(results) > s.cfg.Max {
		results = results[:s.cfg.Max]
	}
	return results, nil
}
