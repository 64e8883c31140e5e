// Package fetch provides the rest client used to bootstrap chart state
// before live ticks arrive.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minax/marketfeed/shared"
	"github.com/tidwall/gjson"
)

const (
	// klinesPath is the historical candles endpoint.
	klinesPath = "/api/v1/klines"
	// tickerPath is the daily ticker stats endpoint.
	tickerPath = "/api/v1/ticker/24hr"
)

// ClientConfig represents the configuration for the hub rest client.
type ClientConfig struct {
	// BaseURL is the base url of the market data hub's rest api.
	BaseURL string
}

// Validate asserts the config sane inputs.
func (cfg *ClientConfig) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("base url cannot be an empty string"))
	}

	return errs
}

// Client represents the market data hub rest api client. It is safe for
// concurrent use.
type Client struct {
	cfg   *ClientConfig
	httpc http.Client
}

// Ensure the Client implements the HistoricFetcher interface.
var _ shared.HistoricFetcher = (*Client)(nil)

// NewClient instantiates a new hub rest client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating hub rest client config: %w", err)
	}

	return &Client{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 5},
	}, nil
}

// formURL creates full urls including parameters for the api. The client is
// called from multiple goroutines, so the url is assembled locally.
func (c *Client) formURL(path string, params string) string {
	var buf bytes.Buffer
	buf.Grow(len(c.cfg.BaseURL) + len(path) + len(params) + 1)
	buf.WriteString(c.cfg.BaseURL)
	buf.WriteString(path)
	buf.WriteString("?")
	buf.WriteString(params)

	return buf.String()
}

// get executes a request against the provided url and returns the body.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status fetching %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}

// candleRows extracts the candle rows from a response body. Depending on the
// hub version the payload is either a bare json array or an object wrapping
// the array under a data key; the shape sniffing is confined here.
func candleRows(body []byte) ([]gjson.Result, error) {
	parsed := gjson.ParseBytes(body)

	switch {
	case parsed.IsArray():
		return parsed.Array(), nil
	case parsed.Get("data").IsArray():
		return parsed.Get("data").Array(), nil
	default:
		return nil, fmt.Errorf("unexpected candle payload shape: %.128s", parsed.Raw)
	}
}

// ParseCandlesticks parses candlesticks from the provided json rows.
func ParseCandlesticks(rows []gjson.Result, symbol string, timeframe shared.Timeframe) []shared.Candlestick {
	candles := make([]shared.Candlestick, 0, len(rows))

	for idx := range rows {
		candle := shared.Candlestick{
			Start:     rows[idx].Get("time").Int(),
			Open:      rows[idx].Get("open").Float(),
			High:      rows[idx].Get("high").Float(),
			Low:       rows[idx].Get("low").Float(),
			Close:     rows[idx].Get("close").Float(),
			Volume:    rows[idx].Get("volume").Float(),
			Symbol:    symbol,
			Timeframe: timeframe,
		}

		candles = append(candles, candle)
	}

	return candles
}

// FetchHistoricCandles fetches historical candles for the provided symbol.
func (c *Client) FetchHistoricCandles(ctx context.Context, symbol string, timeframe shared.Timeframe, limit int) ([]shared.Candlestick, error) {
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("interval", timeframe.String())
	params.Add("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, c.formURL(klinesPath, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("fetching historical candles (%s) for %s: %w", timeframe, symbol, err)
	}

	rows, err := candleRows(body)
	if err != nil {
		return nil, fmt.Errorf("parsing historical candles for %s: %w", symbol, err)
	}

	return ParseCandlesticks(rows, symbol, timeframe), nil
}

// FetchTickerSnapshot fetches the daily rolling stats for the provided symbol.
func (c *Client) FetchTickerSnapshot(ctx context.Context, symbol string) (*shared.TickerSnapshot, error) {
	params := url.Values{}
	params.Add("symbol", symbol)

	body, err := c.get(ctx, c.formURL(tickerPath, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("fetching ticker snapshot for %s: %w", symbol, err)
	}

	data := gjson.ParseBytes(body)
	snapshot := &shared.TickerSnapshot{
		Symbol:      symbol,
		LastPrice:   data.Get("lastPrice").Float(),
		OpenPrice:   data.Get("openPrice").Float(),
		HighPrice:   data.Get("highPrice").Float(),
		LowPrice:    data.Get("lowPrice").Float(),
		BaseVolume:  data.Get("volume").Float(),
		QuoteVolume: data.Get("quoteVolume").Float(),
		CloseTime:   data.Get("closeTime").Int(),
	}

	return snapshot, nil
}
