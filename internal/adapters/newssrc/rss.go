// Package newssrc provides RSS/Atom headline sources.
package newssrc

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
)

// maxAge drops items older than a week; a kiosk news tile is not an archive.
const maxAge = 7 * 24 * time.Hour

const summaryLimit = 300

// FeedSource fetches headlines from one RSS or Atom feed.
type FeedSource struct {
	name   string
	url    string
	parser *gofeed.Parser
}

// NewFeedSource creates a source for one feed. The shared HTTP client carries
// the outbound timeout.
func NewFeedSource(name, feedURL string, client *http.Client) *FeedSource {
	parser := gofeed.NewParser()
	parser.Client = client
	return &FeedSource{name: name, url: feedURL, parser: parser}
}

func (s *FeedSource) Name() string { return s.name }

func (s *FeedSource) Fetch(ctx context.Context) (any, error) {
	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", s.name, err)
	}

	now := time.Now()
	cutoff := now.Add(-maxAge)

	headlines := make([]dashboard.Headline, 0, len(feed.Items))
	for _, item := range feed.Items {
		published := now
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}
		if published.Before(cutoff) {
			continue
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}

		headlines = append(headlines, dashboard.Headline{
			Source:    s.name,
			Title:     strings.TrimSpace(item.Title),
			Link:      item.Link,
			Summary:   truncate(stripHTML(summary), summaryLimit),
			Published: published,
		})
	}
	return headlines, nil
}

// SortHeadlines orders headlines newest first. The news job reuses it after
// merging multiple feeds.
func SortHeadlines(headlines []dashboard.Headline) {
	sort.SliceStable(headlines, func(i, j int) bool {
		return headlines[i].Published.After(headlines[j].Published)
	})
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
