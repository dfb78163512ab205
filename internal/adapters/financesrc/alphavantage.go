package financesrc

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
	"github.com/MirDochEgal555/Dashboard/internal/httpx"
)

const defaultAlphaVantageURL = "https://www.alphavantage.co/query"

// AlphaVantageSource fetches GLOBAL_QUOTE data per symbol. It needs an API
// key; the finance job refuses to schedule this source without one.
type AlphaVantageSource struct {
	baseURL string
	client  *httpx.Client
	apiKey  string
	symbols []string
}

// NewAlphaVantage creates an Alpha Vantage source. baseURL may be empty for
// the production endpoint.
func NewAlphaVantage(client *httpx.Client, apiKey string, symbols []string, baseURL string) *AlphaVantageSource {
	if baseURL == "" {
		baseURL = defaultAlphaVantageURL
	}
	return &AlphaVantageSource{baseURL: baseURL, client: client, apiKey: apiKey, symbols: symbols}
}

func (s *AlphaVantageSource) Name() string { return "alphavantage" }

func (s *AlphaVantageSource) Fetch(ctx context.Context) (any, error) {
	quotes := make([]dashboard.FinanceQuote, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		quote, err := s.fetchOne(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("quote for %s: %w", symbol, err)
		}
		quotes = append(quotes, quote)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })
	return quotes, nil
}

func (s *AlphaVantageSource) fetchOne(ctx context.Context, symbol string) (dashboard.FinanceQuote, error) {
	values := url.Values{}
	values.Set("function", "GLOBAL_QUOTE")
	values.Set("symbol", symbol)
	values.Set("apikey", s.apiKey)

	var payload struct {
		Quote struct {
			Symbol        string `json:"01. symbol"`
			Price         string `json:"05. price"`
			TradingDay    string `json:"07. latest trading day"`
			Change        string `json:"09. change"`
			ChangePercent string `json:"10. change percent"`
		} `json:"Global Quote"`
	}
	if err := s.client.GetJSON(ctx, fmt.Sprintf("%s?%s", s.baseURL, values.Encode()), &payload); err != nil {
		return dashboard.FinanceQuote{}, err
	}
	if payload.Quote.Symbol == "" {
		// Rate limiting and bad keys both come back as 200s with an empty
		// quote object.
		return dashboard.FinanceQuote{}, fmt.Errorf("%w: empty Global Quote", dashboard.ErrMalformedResponse)
	}

	price, err := strconv.ParseFloat(payload.Quote.Price, 64)
	if err != nil {
		return dashboard.FinanceQuote{}, fmt.Errorf("%w: bad price %q", dashboard.ErrMalformedResponse, payload.Quote.Price)
	}
	change, _ := strconv.ParseFloat(payload.Quote.Change, 64)
	changePct, _ := strconv.ParseFloat(strings.TrimSuffix(payload.Quote.ChangePercent, "%"), 64)

	asOf := time.Now().UTC()
	if ts, err := time.Parse("2006-01-02", payload.Quote.TradingDay); err == nil {
		asOf = ts.UTC()
	}

	return dashboard.FinanceQuote{
		Symbol:    strings.ToUpper(payload.Quote.Symbol),
		Price:     price,
		Change:    change,
		ChangePct: changePct,
		AsOf:      asOf,
	}, nil
}
