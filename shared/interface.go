package shared

import (
	"context"
)

// HistoricFetcher defines the contract for bootstrapping chart state from the
// hub's rest api.
type HistoricFetcher interface {
	// FetchHistoricCandles fetches historical candles for the provided symbol.
	FetchHistoricCandles(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]Candlestick, error)
	// FetchTickerSnapshot fetches the daily rolling stats for the provided symbol.
	FetchTickerSnapshot(ctx context.Context, symbol string) (*TickerSnapshot, error)
}
