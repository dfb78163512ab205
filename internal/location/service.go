package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/kelvins/geocoder"
	"golang.org/x/sync/singleflight"

	"github.com/MirDochEgal555/Dashboard/internal/httpx"
	"github.com/MirDochEgal555/Dashboard/internal/store"
)

const (
	// CacheKey is the single cache entry this service owns.
	CacheKey = "location.current"

	// CacheTTL is the fixed freshness window for a resolved location.
	CacheTTL = 24 * time.Hour
)

// Location is the resolved place the weather job fetches for.
type Location struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Label  string  `json:"label"`
	Source string  `json:"source"` // ip | fallback_city | google | stale_cache
}

// Config selects the resolution strategy.
type Config struct {
	// Mode "auto" tries IP geolocation first; "fixed" goes straight to the
	// fallback city.
	Mode string

	// FallbackCity is geocoded when IP geolocation fails or is disabled,
	// e.g. "Stuttgart, DE".
	FallbackCity string

	// GoogleAPIKey switches fallback geocoding from Open-Meteo to Google.
	GoogleAPIKey string

	// Overridable endpoints for tests.
	IPGeolocationURL string
	GeocodingURL     string
}

const (
	defaultIPGeolocationURL = "https://ipapi.co/json/"
	defaultGeocodingURL     = "https://geocoding-api.open-meteo.com/v1/search"
)

// Service resolves the dashboard's location with a two-tier strategy and a
// 24-hour cache. A successful fallback is cached exactly like an IP hit, so
// repeated IP failures do not cause repeated external calls.
type Service struct {
	store  store.Store
	client *httpx.Client
	cfg    Config
	sf     singleflight.Group
}

// NewService builds a Service on top of the shared cache store.
func NewService(st store.Store, client *httpx.Client, cfg Config) *Service {
	if cfg.IPGeolocationURL == "" {
		cfg.IPGeolocationURL = defaultIPGeolocationURL
	}
	if cfg.GeocodingURL == "" {
		cfg.GeocodingURL = defaultGeocodingURL
	}
	return &Service{store: st, client: client, cfg: cfg}
}

// Resolve returns the current location. Order: fresh cache, IP geolocation
// (mode auto), geocoded fallback city, stale cache. Concurrent callers
// collapse into one flight.
func (s *Service) Resolve(ctx context.Context) (Location, error) {
	if loc, ok := s.cached(ctx); ok {
		return loc, nil
	}

	v, err, _ := s.sf.Do(CacheKey, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have resolved
		// and cached while this one waited.
		if loc, ok := s.cached(ctx); ok {
			return loc, nil
		}
		return s.resolveLive(ctx)
	})
	if err != nil {
		return Location{}, err
	}
	return v.(Location), nil
}

func (s *Service) resolveLive(ctx context.Context) (Location, error) {
	if s.cfg.Mode != "fixed" {
		if loc, ok := s.fromIP(ctx); ok {
			s.cache(ctx, loc)
			return loc, nil
		}
	}

	if loc, ok := s.fromFallbackCity(ctx); ok {
		s.cache(ctx, loc)
		return loc, nil
	}

	// Every live tier failed; the last known location, however stale, beats
	// nothing. Not re-cached, so the next resolve tries the live tiers again.
	if loc, ok := s.staleCached(ctx); ok {
		loc.Source = "stale_cache"
		return loc, nil
	}

	return Location{}, errors.New("unable to resolve location from any tier")
}

func (s *Service) cached(ctx context.Context) (Location, bool) {
	entry, err := s.store.Get(ctx, CacheKey)
	if err != nil {
		return Location{}, false
	}
	if !entry.Fresh(time.Now()) {
		return Location{}, false
	}
	return decodeLocation(entry.Payload)
}

func (s *Service) staleCached(ctx context.Context) (Location, bool) {
	entry, err := s.store.Get(ctx, CacheKey)
	if err != nil {
		return Location{}, false
	}
	return decodeLocation(entry.Payload)
}

func decodeLocation(payload json.RawMessage) (Location, bool) {
	var loc Location
	if err := json.Unmarshal(payload, &loc); err != nil {
		return Location{}, false
	}
	if loc.Label == "" {
		return Location{}, false
	}
	return loc, true
}

func (s *Service) cache(ctx context.Context, loc Location) {
	if err := s.store.Put(ctx, CacheKey, loc, CacheTTL); err != nil {
		log.Printf("location: caching resolved location failed: %v", err)
	}
}

func (s *Service) fromIP(ctx context.Context) (Location, bool) {
	var payload struct {
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		City        string  `json:"city"`
		CountryName string  `json:"country_name"`
	}
	if err := s.client.GetJSON(ctx, s.cfg.IPGeolocationURL, &payload); err != nil {
		log.Printf("location: ip geolocation failed: %v", err)
		return Location{}, false
	}
	if payload.Latitude == 0 && payload.Longitude == 0 {
		return Location{}, false
	}
	return Location{
		Lat:    payload.Latitude,
		Lon:    payload.Longitude,
		Label:  normalizeLabel(payload.City, payload.CountryName, "Current location"),
		Source: "ip",
	}, true
}

func (s *Service) fromFallbackCity(ctx context.Context) (Location, bool) {
	query := strings.TrimSpace(s.cfg.FallbackCity)
	if query == "" {
		return Location{}, false
	}

	if s.cfg.GoogleAPIKey != "" {
		if loc, ok := s.fromGoogle(query); ok {
			return loc, true
		}
	}
	return s.fromOpenMeteo(ctx, query)
}

// fromGoogle geocodes the fallback city through the Google Geocoding API.
func (s *Service) fromGoogle(cityQuery string) (Location, bool) {
	geocoder.ApiKey = s.cfg.GoogleAPIKey

	addr := geocoder.Address{}
	parts := strings.SplitN(cityQuery, ",", 2)
	addr.City = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		addr.Country = strings.TrimSpace(parts[1])
	}

	coords, err := geocoder.Geocoding(addr)
	if err != nil {
		log.Printf("location: google geocoding failed for %q: %v", cityQuery, err)
		return Location{}, false
	}
	return Location{
		Lat:    coords.Latitude,
		Lon:    coords.Longitude,
		Label:  cityQuery,
		Source: "google",
	}, true
}

func (s *Service) fromOpenMeteo(ctx context.Context, cityQuery string) (Location, bool) {
	values := url.Values{}
	values.Set("name", cityQuery)
	values.Set("count", "1")
	values.Set("language", "en")
	values.Set("format", "json")

	var payload struct {
		Results []struct {
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			Name        string  `json:"name"`
			CountryCode string  `json:"country_code"`
		} `json:"results"`
	}
	reqURL := fmt.Sprintf("%s?%s", s.cfg.GeocodingURL, values.Encode())
	if err := s.client.GetJSON(ctx, reqURL, &payload); err != nil {
		log.Printf("location: geocoding fallback city %q failed: %v", cityQuery, err)
		return Location{}, false
	}
	if len(payload.Results) == 0 {
		return Location{}, false
	}

	result := payload.Results[0]
	return Location{
		Lat:    result.Latitude,
		Lon:    result.Longitude,
		Label:  normalizeLabel(result.Name, result.CountryCode, cityQuery),
		Source: "fallback_city",
	}, true
}

func normalizeLabel(city, country, fallback string) string {
	city = strings.TrimSpace(city)
	country = strings.TrimSpace(country)
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	case country != "":
		return country
	default:
		return fallback
	}
}
