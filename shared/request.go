package shared

import (
	"time"
)

const (
	// TimeoutDuration is the maximum time to wait before timing out.
	TimeoutDuration = time.Second * 4
)

// SeriesRequest represents a request to fetch the current chart series for a
// symbol.
type SeriesRequest struct {
	Symbol   string
	Response chan ChartSeries
}

// NewSeriesRequest initializes a new series request.
func NewSeriesRequest(symbol string) SeriesRequest {
	return SeriesRequest{
		Symbol:   symbol,
		Response: make(chan ChartSeries, 1),
	}
}

// TimeframeRequest represents a request to switch the aggregation timeframe
// for a symbol.
type TimeframeRequest struct {
	Symbol    string
	Timeframe Timeframe
	Done      chan struct{}
}

// NewTimeframeRequest initializes a new timeframe request.
func NewTimeframeRequest(symbol string, timeframe Timeframe) TimeframeRequest {
	return TimeframeRequest{
		Symbol:    symbol,
		Timeframe: timeframe,
		Done:      make(chan struct{}, 1),
	}
}

// ResetRequest represents a request to clear all chart state for a symbol.
type ResetRequest struct {
	Symbol string
	Done   chan struct{}
}

// NewResetRequest initializes a new reset request.
func NewResetRequest(symbol string) ResetRequest {
	return ResetRequest{
		Symbol: symbol,
		Done:   make(chan struct{}, 1),
	}
}

// BootstrapRequest represents a request to pre-populate chart state for a
// symbol from historical candles.
type BootstrapRequest struct {
	Symbol  string
	Candles []Candlestick
	Done    chan struct{}
}

// NewBootstrapRequest initializes a new bootstrap request.
func NewBootstrapRequest(symbol string, candles []Candlestick) BootstrapRequest {
	return BootstrapRequest{
		Symbol:  symbol,
		Candles: candles,
		Done:    make(chan struct{}, 1),
	}
}
