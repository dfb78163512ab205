// Package financesrc provides market quote sources. Stooq serves keyless
// delayed CSV quotes; Alpha Vantage is the keyed alternative.
package financesrc

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
	"github.com/MirDochEgal555/Dashboard/internal/httpx"
)

const defaultStooqURL = "https://stooq.com/q/l/"

// StooqSource fetches delayed quotes for a symbol list from stooq.com.
type StooqSource struct {
	baseURL string
	client  *httpx.Client
	symbols []string
}

// NewStooq creates a stooq source. baseURL may be empty for the production
// endpoint.
func NewStooq(client *httpx.Client, symbols []string, baseURL string) *StooqSource {
	if baseURL == "" {
		baseURL = defaultStooqURL
	}
	return &StooqSource{baseURL: baseURL, client: client, symbols: symbols}
}

func (s *StooqSource) Name() string { return "stooq" }

func (s *StooqSource) Fetch(ctx context.Context) (any, error) {
	values := url.Values{}
	values.Set("s", strings.ToLower(strings.Join(s.symbols, "+")))
	values.Set("f", "sd2t2ohlcv")
	values.Set("h", "")
	values.Set("e", "csv")

	body, err := s.client.GetBytes(ctx, fmt.Sprintf("%s?%s", s.baseURL, values.Encode()))
	if err != nil {
		return nil, err
	}

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dashboard.ErrMalformedResponse, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: no quote rows", dashboard.ErrMalformedResponse)
	}

	col := columnIndex(records[0])
	for _, name := range []string{"Symbol", "Date", "Open", "Close"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", dashboard.ErrMalformedResponse, name)
		}
	}

	quotes := make([]dashboard.FinanceQuote, 0, len(records)-1)
	for _, row := range records[1:] {
		symbol := row[col["Symbol"]]
		closeStr := row[col["Close"]]
		if closeStr == "N/D" || closeStr == "" {
			// Unknown symbols come back as N/D rows; skip rather than fail
			// the whole list.
			continue
		}
		closePrice, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			continue
		}
		openPrice, err := strconv.ParseFloat(row[col["Open"]], 64)
		if err != nil {
			continue
		}

		asOf := parseStooqTime(row[col["Date"]], timeField(row, col))
		change := closePrice - openPrice
		var changePct float64
		if openPrice != 0 {
			changePct = change / openPrice * 100
		}

		quotes = append(quotes, dashboard.FinanceQuote{
			Symbol:    strings.ToUpper(symbol),
			Price:     closePrice,
			Change:    change,
			ChangePct: changePct,
			AsOf:      asOf,
		})
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: all symbols unresolved", dashboard.ErrMalformedResponse)
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })
	return quotes, nil
}

func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	return col
}

func timeField(row []string, col map[string]int) string {
	if i, ok := col["Time"]; ok && i < len(row) {
		return row[i]
	}
	return ""
}

func parseStooqTime(date, clock string) time.Time {
	if clock != "" {
		if ts, err := time.Parse("2006-01-02 15:04:05", date+" "+clock); err == nil {
			return ts.UTC()
		}
	}
	if ts, err := time.Parse("2006-01-02", date); err == nil {
		return ts.UTC()
	}
	return time.Now().UTC()
}
