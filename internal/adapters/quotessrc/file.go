// Package quotessrc serves rotating quotes from a local JSON file.
package quotessrc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
)

// Source reads a quotes file and rotates its order once per local day, so the
// widget shows a different leading quote each morning without any state.
type Source struct {
	path string
	tz   *time.Location
	now  func() time.Time
}

// New creates a quotes file source.
func New(path string, tz *time.Location) *Source {
	return &Source{path: path, tz: tz, now: time.Now}
}

func (s *Source) Name() string { return "quotes" }

func (s *Source) Fetch(ctx context.Context) (any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading quotes file: %w", err)
	}

	var quotes []dashboard.Quote
	if err := json.Unmarshal(data, &quotes); err != nil {
		return nil, fmt.Errorf("%w: %v", dashboard.ErrMalformedResponse, err)
	}
	for i, q := range quotes {
		if q.Text == "" {
			return nil, fmt.Errorf("%w: quote %d has no text", dashboard.ErrMalformedResponse, i)
		}
	}

	shuffleForDay(quotes, s.now().In(s.tz))
	return quotes, nil
}

// shuffleForDay permutes quotes with a seed derived from the local calendar
// date. The same day always yields the same order.
func shuffleForDay(quotes []dashboard.Quote, day time.Time) {
	year, month, dom := day.Date()
	seed := int64(year)*10000 + int64(month)*100 + int64(dom)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(quotes), func(i, j int) {
		quotes[i], quotes[j] = quotes[j], quotes[i]
	})
}
