// Package weathersrc provides the Open-Meteo weather source.
package weathersrc

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
	"github.com/MirDochEgal555/Dashboard/internal/httpx"
	"github.com/MirDochEgal555/Dashboard/internal/location"
)

const defaultForecastURL = "https://api.open-meteo.com/v1/forecast"

// Locator supplies the coordinates the forecast is fetched for.
type Locator interface {
	Resolve(ctx context.Context) (location.Location, error)
}

// Config tunes the Open-Meteo source.
type Config struct {
	// Units is "metric" or "imperial".
	Units string

	// Timezone is passed through to the API so daily buckets land on local
	// days.
	Timezone string

	// Days is the forecast horizon, clamped to 1..10 by the API contract.
	Days int

	// BaseURL overrides the forecast endpoint for tests.
	BaseURL string
}

// Source fetches current conditions plus the daily outlook from Open-Meteo.
type Source struct {
	name    string
	baseURL string
	client  *httpx.Client
	locator Locator
	cfg     Config
}

// New creates the Open-Meteo source.
func New(client *httpx.Client, locator Locator, cfg Config) *Source {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultForecastURL
	}
	if cfg.Days < 1 {
		cfg.Days = 1
	}
	if cfg.Days > 10 {
		cfg.Days = 10
	}
	return &Source{
		name:    "open_meteo",
		baseURL: baseURL,
		client:  client,
		locator: locator,
		cfg:     cfg,
	}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Fetch(ctx context.Context) (any, error) {
	loc, err := s.locator.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving location: %w", err)
	}

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%.5f", loc.Lat))
	values.Set("longitude", fmt.Sprintf("%.5f", loc.Lon))
	values.Set("current", "temperature_2m,weather_code")
	values.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max")
	values.Set("timezone", s.cfg.Timezone)
	values.Set("forecast_days", strconv.Itoa(s.cfg.Days))
	if s.cfg.Units == "imperial" {
		values.Set("temperature_unit", "fahrenheit")
	}

	var payload struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
		Daily struct {
			Time           []string  `json:"time"`
			WeatherCode    []int     `json:"weather_code"`
			TemperatureMax []float64 `json:"temperature_2m_max"`
			TemperatureMin []float64 `json:"temperature_2m_min"`
			PrecipProbMax  []*int    `json:"precipitation_probability_max"`
		} `json:"daily"`
	}

	reqURL := fmt.Sprintf("%s?%s", s.baseURL, values.Encode())
	if err := s.client.GetJSON(ctx, reqURL, &payload); err != nil {
		return nil, err
	}
	if len(payload.Daily.Time) == 0 {
		return nil, fmt.Errorf("%w: daily forecast missing", dashboard.ErrMalformedResponse)
	}

	count := len(payload.Daily.Time)
	for _, n := range []int{len(payload.Daily.WeatherCode), len(payload.Daily.TemperatureMax), len(payload.Daily.TemperatureMin)} {
		if n < count {
			count = n
		}
	}

	daily := make([]dashboard.DailyForecast, 0, count)
	for i := 0; i < count; i++ {
		var precip *int
		if i < len(payload.Daily.PrecipProbMax) {
			precip = payload.Daily.PrecipProbMax[i]
		}
		daily = append(daily, dashboard.DailyForecast{
			Date:       payload.Daily.Time[i],
			MinTemp:    payload.Daily.TemperatureMin[i],
			MaxTemp:    payload.Daily.TemperatureMax[i],
			PrecipProb: precip,
			Condition:  WeatherCodeLabel(payload.Daily.WeatherCode[i]),
		})
	}

	units := s.cfg.Units
	if units == "" {
		units = "metric"
	}

	return dashboard.WeatherSnapshot{
		Temp:          payload.Current.Temperature,
		Condition:     WeatherCodeLabel(payload.Current.WeatherCode),
		Daily:         daily,
		LocationLabel: loc.Label,
		Lat:           loc.Lat,
		Lon:           loc.Lon,
		Units:         units,
		UpdatedAt:     time.Now().UTC(),
	}, nil
}

// weatherCodeLabels maps WMO weather interpretation codes to display labels.
var weatherCodeLabels = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snowfall",
	73: "Moderate snowfall",
	75: "Heavy snowfall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// WeatherCodeLabel renders a WMO weather code as a display label.
func WeatherCodeLabel(code int) string {
	if label, ok := weatherCodeLabels[code]; ok {
		return label
	}
	return fmt.Sprintf("Code %d", code)
}
