package dashboard

import "time"

// CalendarEvent is one entry on the day view, normalized from an ICS source.
// Start and End carry the dashboard's local timezone.
type CalendarEvent struct {
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
	Source string    `json:"source"`
}

// DailyForecast is one day of the weather outlook.
type DailyForecast struct {
	Date       string  `json:"date"` // local calendar date, YYYY-MM-DD
	MinTemp    float64 `json:"min_temp"`
	MaxTemp    float64 `json:"max_temp"`
	PrecipProb *int    `json:"precip_prob,omitempty"` // percent, nil when the provider has none
	Condition  string  `json:"condition"`
}

// WeatherSnapshot is the normalized current-conditions view plus outlook.
type WeatherSnapshot struct {
	Temp          float64         `json:"temp"`
	Condition     string          `json:"condition"`
	Daily         []DailyForecast `json:"daily"`
	LocationLabel string          `json:"location_label"`
	Lat           float64         `json:"lat"`
	Lon           float64         `json:"lon"`
	Units         string          `json:"units"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Departure is one upcoming departure from a transit stop.
type Departure struct {
	Line      string    `json:"line"`
	Direction string    `json:"direction"`
	Stop      string    `json:"stop"`
	Planned   time.Time `json:"planned"`
	DelayMin  int       `json:"delay_minutes"`
	Platform  string    `json:"platform,omitempty"`
}

// Headline is one news item from an RSS or Atom feed.
type Headline struct {
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Summary   string    `json:"summary,omitempty"`
	Published time.Time `json:"published"`
}

// FinanceQuote is one instrument's latest quote.
type FinanceQuote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	AsOf      time.Time `json:"as_of"`
}

// SportsResult is one finished match.
type SportsResult struct {
	League    string    `json:"league"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeGoals int       `json:"home_goals"`
	AwayGoals int       `json:"away_goals"`
	Kickoff   time.Time `json:"kickoff"`
}

// PhotoItem is one photo from the local slideshow folder. Path is relative to
// the configured folder.
type PhotoItem struct {
	Path    string `json:"path"`
	Caption string `json:"caption,omitempty"`
}

// Quote is one entry from the local quotes file.
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author,omitempty"`
}
