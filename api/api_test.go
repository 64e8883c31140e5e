package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/minax/marketfeed/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

type mockFeed struct {
	state     shared.ConnectionState
	tickers   []string
	trades    []string
	series    shared.ChartSeries
	seriesErr error
	stats     map[string]shared.TickerSnapshot
}

func (f *mockFeed) State() shared.ConnectionState {
	return f.state
}

func (f *mockFeed) ActiveSubscriptions() (tickers []string, trades []string) {
	return f.tickers, f.trades
}

func (f *mockFeed) Series(_ context.Context, symbol string) (shared.ChartSeries, error) {
	if f.seriesErr != nil {
		return shared.ChartSeries{}, f.seriesErr
	}

	series := f.series
	series.Symbol = symbol

	return series, nil
}

func (f *mockFeed) Stats(symbol string) (shared.TickerSnapshot, bool) {
	stats, ok := f.stats[symbol]
	return stats, ok
}

func setupServer(t *testing.T, feed *mockFeed) *gin.Engine {
	cfg := &ServerConfig{
		ListenAddr: ":0",
		Feed:       feed,
		Logger:     &log.Logger,
	}

	server, err := NewServer(cfg)
	assert.NoError(t, err)

	return server.Router()
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(recorder, req)

	return recorder
}

func TestServerConfigValidate(t *testing.T) {
	feed := &mockFeed{}

	tests := []struct {
		name    string
		cfg     *ServerConfig
		wantErr bool
	}{
		{
			name:    "missing everything",
			cfg:     &ServerConfig{},
			wantErr: true,
		},
		{
			name: "missing feed",
			cfg: &ServerConfig{
				ListenAddr: ":8080",
				Logger:     &log.Logger,
			},
			wantErr: true,
		},
		{
			name: "valid config",
			cfg: &ServerConfig{
				ListenAddr: ":8080",
				Feed:       feed,
				Logger:     &log.Logger,
			},
			wantErr: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.cfg.Validate()
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHealthAndConnection(t *testing.T) {
	feed := &mockFeed{state: shared.Connected}
	router := setupServer(t, feed)

	// Ensure the health endpoint reports the connection state.
	resp := get(router, "/health")
	assert.Equal(t, resp.Code, http.StatusOK)

	body := gjson.ParseBytes(resp.Body.Bytes())
	assert.Equal(t, body.Get("status").String(), "OK")
	assert.Equal(t, body.Get("state").String(), "connected")

	// Ensure responses carry a request id.
	assert.NotEqual(t, resp.Header().Get(requestIDHeader), "")

	// Ensure the connection endpoint reports the state.
	resp = get(router, "/api/v1/connection")
	assert.Equal(t, resp.Code, http.StatusOK)

	body = gjson.ParseBytes(resp.Body.Bytes())
	assert.Equal(t, body.Get("state").String(), "connected")
}

func TestSubscriptions(t *testing.T) {
	feed := &mockFeed{
		tickers: []string{"BTCUSDT", "ETHUSDT"},
		trades:  []string{"BTCUSDT"},
	}
	router := setupServer(t, feed)

	// Ensure the active membership sets are reported.
	resp := get(router, "/api/v1/subscriptions")
	assert.Equal(t, resp.Code, http.StatusOK)

	body := gjson.ParseBytes(resp.Body.Bytes())
	assert.Equal(t, len(body.Get("tickers").Array()), 2)
	assert.Equal(t, len(body.Get("trades").Array()), 1)
}

func TestSeriesSnapshot(t *testing.T) {
	series := shared.ChartSeries{
		Timeframe: shared.OneMinute,
		Candles: []shared.Candlestick{
			{Start: 0, Open: 100, High: 101, Low: 99, Close: 100.5},
			{Start: 60, Open: 100.5, High: 102, Low: 100, Close: 101},
			{Start: 120, Open: 101, High: 103, Low: 101, Close: 102},
		},
		Line: []shared.LinePoint{
			{Time: 0, Value: 100},
			{Time: 60, Value: 101},
			{Time: 120, Value: 102},
		},
	}

	feed := &mockFeed{series: series}
	router := setupServer(t, feed)

	// Ensure a series snapshot is served.
	resp := get(router, "/api/v1/series/BTCUSDT")
	assert.Equal(t, resp.Code, http.StatusOK)

	body := gjson.ParseBytes(resp.Body.Bytes())
	assert.Equal(t, len(body.Get("Candles").Array()), 3)

	// Ensure the limit query trims to the newest entries.
	resp = get(router, "/api/v1/series/BTCUSDT?limit=2")
	assert.Equal(t, resp.Code, http.StatusOK)

	body = gjson.ParseBytes(resp.Body.Bytes())
	candles := body.Get("Candles").Array()
	assert.Equal(t, len(candles), 2)
	assert.Equal(t, candles[0].Get("Start").Int(), int64(60))

	// Ensure invalid symbols and limits are rejected.
	resp = get(router, "/api/v1/series/btcusdt")
	assert.Equal(t, resp.Code, http.StatusBadRequest)

	resp = get(router, "/api/v1/series/BTCUSDT?limit=-1")
	assert.Equal(t, resp.Code, http.StatusBadRequest)

	// Ensure feed errors surface as 500s.
	feed.seriesErr = fmt.Errorf("snapshot timed out")
	resp = get(router, "/api/v1/series/BTCUSDT")
	assert.Equal(t, resp.Code, http.StatusInternalServerError)
}

func TestStatsSnapshot(t *testing.T) {
	feed := &mockFeed{
		stats: map[string]shared.TickerSnapshot{
			"BTCUSDT": {
				Symbol:    "BTCUSDT",
				LastPrice: 64250.5,
			},
		},
	}
	router := setupServer(t, feed)

	// Ensure known symbols report their stats.
	resp := get(router, "/api/v1/stats/BTCUSDT")
	assert.Equal(t, resp.Code, http.StatusOK)

	body := gjson.ParseBytes(resp.Body.Bytes())
	assert.Equal(t, body.Get("LastPrice").Float(), 64250.5)

	// Ensure unknown symbols report a 404.
	resp = get(router, "/api/v1/stats/DOGEUSDT")
	assert.Equal(t, resp.Code, http.StatusNotFound)
}

func TestValidSymbol(t *testing.T) {
	// Ensure symbol validation accepts plausible pairs and rejects the rest.
	tests := []struct {
		symbol string
		want   bool
	}{
		{"BTCUSDT", true},
		{"1INCHUSDT", true},
		{"", false},
		{"btcusdt", false},
		{"BTC-USDT", false},
		{"AVERYVERYLONGSYMBOLNAME", false},
	}

	for _, test := range tests {
		assert.Equal(t, validSymbol(test.symbol), test.want)
	}
}
