package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// MarketClient fetches tracked index quotes from a quote API that returns
// the last price and previous close per symbol.
type MarketClient struct {
	baseURL string
	tickers map[string]string // display name -> symbol
	client  *http.Client
	logger  zerolog.Logger
}

// NewMarketClient creates a finance provider over the given quote endpoint.
func NewMarketClient(baseURL string, tickers map[string]string, timeout time.Duration, logger zerolog.Logger) *MarketClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MarketClient{
		baseURL: baseURL,
		tickers: tickers,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("provider", "market").Logger(),
	}
}

// MarketIndices fetches all configured tickers. Individual ticker failures
// are logged and skipped; the remaining indices are still returned.
func (c *MarketClient) MarketIndices(ctx context.Context) (map[string]Index, error) {
	results := make(map[string]Index, len(c.tickers))

	for name, symbol := range c.tickers {
		idx, err := c.fetchQuote(ctx, symbol)
		if err != nil {
			c.logger.Warn().Err(err).Str("name", name).Str("symbol", symbol).Msg("Quote fetch failed")
			continue
		}
		results[name] = *idx
		c.logger.Debug().Str("name", name).Str("price", idx.Price).Str("changePct", idx.ChangePct).Msg("Quote fetched")
	}

	return results, nil
}

func (c *MarketClient) fetchQuote(ctx context.Context, symbol string) (*Index, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API error (%d)", resp.StatusCode)
	}

	var data struct {
		LastPrice     float64 `json:"last_price"`
		PreviousClose float64 `json:"previous_close"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if data.LastPrice == 0 || data.PreviousClose == 0 {
		return nil, fmt.Errorf("quote API returned empty prices")
	}

	change := data.LastPrice - data.PreviousClose
	changePct := change / data.PreviousClose * 100

	direction := "up"
	if change < 0 {
		direction = "down"
	}

	return &Index{
		Price:        formatPrice(data.LastPrice),
		Change:       fmt.Sprintf("%+.2f", change),
		ChangePct:    fmt.Sprintf("%+.2f%%", changePct),
		ChangePctRaw: round2(changePct),
		Direction:    direction,
	}, nil
}

// formatPrice renders a price with thousands separators, e.g. "2,534.17".
func formatPrice(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	dot := len(s) - 3
	intPart := s[:dot]
	out := ""
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out += ","
		}
		out += string(r)
	}
	if neg {
		out = "-" + out
	}
	return out + s[dot:]
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
