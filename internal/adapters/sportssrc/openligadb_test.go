package sportssrc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
	"github.com/MirDochEgal555/Dashboard/internal/httpx"
)

const matchdataFixture = `[
	{
		"matchDateTimeUTC": "2026-02-28T14:30:00Z",
		"matchIsFinished": true,
		"team1": {"teamName": "VfB Stuttgart"},
		"team2": {"teamName": "SC Freiburg"},
		"matchResults": [
			{"resultTypeID": 1, "pointsTeam1": 1, "pointsTeam2": 0},
			{"resultTypeID": 2, "pointsTeam1": 2, "pointsTeam2": 1}
		]
	},
	{
		"matchDateTimeUTC": "2026-03-01T16:30:00Z",
		"matchIsFinished": true,
		"team1": {"teamName": "FC Augsburg"},
		"team2": {"teamName": "1. FC Koeln"},
		"matchResults": [
			{"resultTypeID": 1, "pointsTeam1": 0, "pointsTeam2": 0}
		]
	},
	{
		"matchDateTimeUTC": "2026-03-07T14:30:00Z",
		"matchIsFinished": false,
		"team1": {"teamName": "Borussia Dortmund"},
		"team2": {"teamName": "VfB Stuttgart"},
		"matchResults": []
	}
]`

func TestFetchReturnsFinishedMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getmatchdata/bl1/2025" {
			t.Errorf("unexpected path: %q", r.URL.Path)
		}
		w.Write([]byte(matchdataFixture))
	}))
	defer srv.Close()

	src := New(httpx.New("sports-test", &http.Client{Timeout: 2 * time.Second}), Config{
		League:  "bl1",
		Season:  "2025",
		BaseURL: srv.URL,
	})
	if src.Name() != "openligadb:bl1" {
		t.Fatalf("unexpected source name: %q", src.Name())
	}

	value, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	results, ok := value.([]dashboard.SportsResult)
	if !ok {
		t.Fatalf("expected []dashboard.SportsResult, got %T", value)
	}

	// The unfinished match is dropped; the rest newest first.
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	if results[0].HomeTeam != "FC Augsburg" {
		t.Fatalf("results not sorted newest first: %+v", results)
	}

	stuttgart := results[1]
	if stuttgart.HomeGoals != 2 || stuttgart.AwayGoals != 1 {
		t.Fatalf("expected the end result (resultTypeID 2), got %+v", stuttgart)
	}
	if stuttgart.League != "bl1" {
		t.Fatalf("expected the league stamped on results, got %q", stuttgart.League)
	}

	// Without an end-result entry the last entry counts.
	if results[0].HomeGoals != 0 || results[0].AwayGoals != 0 {
		t.Fatalf("expected the halftime fallback score, got %+v", results[0])
	}
}

func TestFetchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(matchdataFixture))
	}))
	defer srv.Close()

	src := New(httpx.New("sports-cap", &http.Client{Timeout: time.Second}), Config{
		League:  "bl1",
		Season:  "2025",
		Max:     1,
		BaseURL: srv.URL,
	})

	value, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	results := value.([]dashboard.SportsResult)
	if len(results) != 1 || results[0].HomeTeam != "FC Augsburg" {
		t.Fatalf("expected only the newest result, got %+v", results)
	}
}

func TestFetchRejectsBadKickoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"matchDateTimeUTC": "yesterday", "matchIsFinished": true,
			"team1": {"teamName": "A"}, "team2": {"teamName": "B"},
			"matchResults": [{"resultTypeID": 2, "pointsTeam1": 1, "pointsTeam2": 1}]}]`))
	}))
	defer srv.Close()

	src := New(httpx.New("sports-bad", &http.Client{Timeout: time.Second}), Config{
		League:  "bl1",
		Season:  "2025",
		BaseURL: srv.URL,
	})

	_, err := src.Fetch(context.Background())
	if !errors.Is(err, dashboard.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}
