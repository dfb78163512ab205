package quotessrc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
)

const quotesFixture = `[
	{"text": "First quote", "author": "A"},
	{"text": "Second quote", "author": "B"},
	{"text": "Third quote"},
	{"text": "Fourth quote", "author": "D"},
	{"text": "Fifth quote", "author": "E"}
]`

func writeQuotes(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quotes.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestFetchShufflesDeterministicallyPerDay(t *testing.T) {
	src := New(writeQuotes(t, quotesFixture), time.UTC)
	src.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }

	first, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// Same day, later hour: identical order.
	src.now = func() time.Time { return time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC) }
	second, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("same-day fetches must return the same order")
	}

	// A different day reorders, but keeps the same set.
	src.now = func() time.Time { return time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC) }
	third, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	quotes := third.([]dashboard.Quote)
	if len(quotes) != 5 {
		t.Fatalf("expected all 5 quotes, got %+v", quotes)
	}
	seen := map[string]bool{}
	for _, q := range quotes {
		seen[q.Text] = true
	}
	for _, want := range []string{"First quote", "Second quote", "Third quote", "Fourth quote", "Fifth quote"} {
		if !seen[want] {
			t.Fatalf("missing quote %q in %+v", want, quotes)
		}
	}
}

func TestFetchRejectsInvalidFile(t *testing.T) {
	src := New(writeQuotes(t, `{"not": "a list"}`), time.UTC)
	if _, err := src.Fetch(context.Background()); !errors.Is(err, dashboard.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}

	src = New(writeQuotes(t, `[{"author": "nobody"}]`), time.UTC)
	if _, err := src.Fetch(context.Background()); !errors.Is(err, dashboard.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse for a textless quote, got %v", err)
	}
}

func TestFetchMissingFile(t *testing.T) {
	src := New(filepath.Join(t.TempDir(), "missing.json"), time.UTC)
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatal("expected an error for a missing quotes file")
	}
}
