// Package calendarsrc provides calendar sources backed by ICS data, either a
// local file or a remote URL.
package calendarsrc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/httpx"
)

// FileSource reads events for the current local day from an ICS file on disk.
type FileSource struct {
	name string
	path string
	tz   *time.Location
}

// NewFileSource creates a source named after the file when name is empty.
func NewFileSource(name, path string, tz *time.Location) *FileSource {
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &FileSource{name: name, path: path, tz: tz}
}

func (s *FileSource) Name() string { return s.name }

func (s *FileSource) Fetch(_ context.Context) (any, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading ICS file %s: %w", s.path, err)
	}
	events := eventsForDay(stripBOM(string(raw)), s.name, s.tz, time.Now().In(s.tz))
	return events, nil
}

// URLSource fetches events for the current local day from a remote ICS feed.
// webcal:// URLs are rewritten to https:// at construction.
type URLSource struct {
	name   string
	url    string
	tz     *time.Location
	client *httpx.Client
}

// NewURLSource creates a source named after the URL host when name is empty.
func NewURLSource(name, rawURL string, tz *time.Location, client *httpx.Client) *URLSource {
	rawURL = RewriteWebcal(rawURL)
	if name == "" {
		name = hostOf(rawURL)
	}
	return &URLSource{name: name, url: rawURL, tz: tz, client: client}
}

func (s *URLSource) Name() string { return s.name }

func (s *URLSource) Fetch(ctx context.Context) (any, error) {
	body, err := s.client.GetBytes(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("fetching ICS url: %w", err)
	}
	events := eventsForDay(stripBOM(string(body)), s.name, s.tz, time.Now().In(s.tz))
	return events, nil
}

// RewriteWebcal turns a webcal:// URL into its https:// equivalent.
func RewriteWebcal(rawURL string) string {
	if strings.HasPrefix(strings.ToLower(rawURL), "webcal://") {
		return "https://" + rawURL[len("webcal://"):]
	}
	return rawURL
}

func hostOf(rawURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if trimmed == "" {
		return "Remote ICS"
	}
	return trimmed
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
