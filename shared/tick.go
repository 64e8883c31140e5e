package shared

import (
	"errors"
	"fmt"
)

// Side represents the aggressing side of a trade.
type Side int

const (
	Buy Side = iota
	Sell
)

// String stringifies the provided side.
func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Tick represents a single inbound ticker update for a symbol.
type Tick struct {
	Symbol      string
	EventTime   int64 // epoch milliseconds.
	LastPrice   float64
	OpenPrice   float64
	HighPrice   float64
	LowPrice    float64
	BaseVolume  float64
	QuoteVolume float64
}

// Validate asserts the tick has sane inputs.
func (t *Tick) Validate() error {
	var errs error

	if t.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("tick symbol cannot be an empty string"))
	}
	if t.EventTime <= 0 {
		errs = errors.Join(errs, fmt.Errorf("tick event time must be positive"))
	}
	if t.LastPrice <= 0 {
		errs = errors.Join(errs, fmt.Errorf("tick last price must be positive"))
	}

	return errs
}

// EventTimeSeconds returns the tick's event time in epoch seconds.
func (t *Tick) EventTimeSeconds() int64 {
	return t.EventTime / 1000
}

// Trade represents a single inbound executed trade event for a symbol.
type Trade struct {
	Symbol     string
	TradeID    int64
	Price      float64
	Quantity   float64
	TradeTime  int64 // epoch milliseconds.
	BuyerMaker bool
}

// Validate asserts the trade has sane inputs.
func (t *Trade) Validate() error {
	var errs error

	if t.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("trade symbol cannot be an empty string"))
	}
	if t.TradeTime <= 0 {
		errs = errors.Join(errs, fmt.Errorf("trade time must be positive"))
	}
	if t.Price <= 0 {
		errs = errors.Join(errs, fmt.Errorf("trade price must be positive"))
	}

	return errs
}

// TradeTimeSeconds returns the trade's execution time in epoch seconds.
func (t *Trade) TradeTimeSeconds() int64 {
	return t.TradeTime / 1000
}

// TakerSide returns the aggressing side of the trade. When the buyer is the
// market maker the taker sold into the book.
func (t *Trade) TakerSide() Side {
	if t.BuyerMaker {
		return Sell
	}

	return Buy
}

// TickerSnapshot represents the daily rolling stats for a symbol sourced from
// the hub's rest api.
type TickerSnapshot struct {
	Symbol      string
	LastPrice   float64
	OpenPrice   float64
	HighPrice   float64
	LowPrice    float64
	BaseVolume  float64
	QuoteVolume float64
	CloseTime   int64 // epoch milliseconds.
}
