// Package chart converts per-symbol tick and trade streams into bounded,
// time-bucketed chart series: candlesticks, line points and volume bars.
package chart

import (
	"context"
	"errors"
	"fmt"

	"github.com/minax/marketfeed/shared"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// defaultCapacity is the default maximum number of entries per series.
	defaultCapacity = 500
)

// ManagerConfig represents the chart manager configuration.
type ManagerConfig struct {
	// Capacity is the maximum number of entries retained per series.
	// Defaults to defaultCapacity when zero.
	Capacity int
	// Timeframe is the initial aggregation timeframe for new symbols.
	Timeframe shared.Timeframe
	// CandleSource is the stream kind that drives candle and volume
	// aggregation. Events from the other kind only extend the line series.
	// Defaults to the ticker stream.
	CandleSource shared.StreamKind
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.Capacity < 0 {
		errs = errors.Join(errs, fmt.Errorf("series capacity cannot be negative"))
	}
	if cfg.CandleSource != shared.TickerStream && cfg.CandleSource != shared.TradeStream {
		errs = errors.Join(errs, fmt.Errorf("unsupported candle source: %s", cfg.CandleSource))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager owns all per-symbol aggregation state. A single run goroutine
// drains the signal channels, so ticks for a symbol are always applied in
// arrival order and series state is never shared across goroutines.
type Manager struct {
	cfg               *ManagerConfig
	charts            map[string]*symbolChart
	tickSignals       chan shared.Tick
	tradeSignals      chan shared.Trade
	seriesRequests    chan shared.SeriesRequest
	timeframeRequests chan shared.TimeframeRequest
	resetRequests     chan shared.ResetRequest
	bootstrapRequests chan shared.BootstrapRequest
}

// NewManager initializes a new chart manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating chart manager config: %w", err)
	}

	if cfg.Capacity == 0 {
		cfg.Capacity = defaultCapacity
	}

	return &Manager{
		cfg:               cfg,
		charts:            make(map[string]*symbolChart),
		tickSignals:       make(chan shared.Tick, bufferSize),
		tradeSignals:      make(chan shared.Trade, bufferSize),
		seriesRequests:    make(chan shared.SeriesRequest, bufferSize),
		timeframeRequests: make(chan shared.TimeframeRequest, bufferSize),
		resetRequests:     make(chan shared.ResetRequest, bufferSize),
		bootstrapRequests: make(chan shared.BootstrapRequest, bufferSize),
	}, nil
}

// SendTick relays the provided tick for aggregation.
func (m *Manager) SendTick(tick shared.Tick) {
	select {
	case m.tickSignals <- tick:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("tick channel at capacity: %d/%d",
			len(m.tickSignals), bufferSize)
	}
}

// SendTrade relays the provided trade for aggregation.
func (m *Manager) SendTrade(trade shared.Trade) {
	select {
	case m.tradeSignals <- trade:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("trade channel at capacity: %d/%d",
			len(m.tradeSignals), bufferSize)
	}
}

// SendSeriesRequest relays the provided series request for processing.
func (m *Manager) SendSeriesRequest(req shared.SeriesRequest) {
	select {
	case m.seriesRequests <- req:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("series request channel at capacity: %d/%d",
			len(m.seriesRequests), bufferSize)
	}
}

// SendTimeframeRequest relays the provided timeframe request for processing.
func (m *Manager) SendTimeframeRequest(req shared.TimeframeRequest) {
	select {
	case m.timeframeRequests <- req:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("timeframe request channel at capacity: %d/%d",
			len(m.timeframeRequests), bufferSize)
	}
}

// SendResetRequest relays the provided reset request for processing.
func (m *Manager) SendResetRequest(req shared.ResetRequest) {
	select {
	case m.resetRequests <- req:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("reset request channel at capacity: %d/%d",
			len(m.resetRequests), bufferSize)
	}
}

// SendBootstrapRequest relays the provided bootstrap request for processing.
func (m *Manager) SendBootstrapRequest(req shared.BootstrapRequest) {
	select {
	case m.bootstrapRequests <- req:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("bootstrap request channel at capacity: %d/%d",
			len(m.bootstrapRequests), bufferSize)
	}
}

// chartFor returns the aggregation state for the provided symbol, creating it
// on first interest.
func (m *Manager) chartFor(symbol string) *symbolChart {
	c, ok := m.charts[symbol]
	if !ok {
		c = newSymbolChart(symbol, m.cfg.Timeframe, m.cfg.Capacity, m.cfg.CandleSource)
		m.charts[symbol] = c
	}

	return c
}

// handleTick processes the provided tick. Malformed ticks are dropped with a
// warning so one bad message never stalls the stream.
func (m *Manager) handleTick(tick *shared.Tick) {
	err := tick.Validate()
	if err != nil {
		m.cfg.Logger.Warn().Msgf("dropping malformed tick: %v", err)
		return
	}

	m.chartFor(tick.Symbol).applyTick(tick)
}

// handleTrade processes the provided trade.
func (m *Manager) handleTrade(trade *shared.Trade) {
	err := trade.Validate()
	if err != nil {
		m.cfg.Logger.Warn().Msgf("dropping malformed trade: %v", err)
		return
	}

	m.chartFor(trade.Symbol).applyTrade(trade)
}

// handleSeriesRequest responds with a snapshot of the symbol's series.
func (m *Manager) handleSeriesRequest(req *shared.SeriesRequest) {
	req.Response <- m.chartFor(req.Symbol).series()
}

// handleTimeframeRequest switches the aggregation timeframe for a symbol.
func (m *Manager) handleTimeframeRequest(req *shared.TimeframeRequest) {
	m.chartFor(req.Symbol).setTimeframe(req.Timeframe)
	m.cfg.Logger.Info().Msgf("timeframe for %s set to %s", req.Symbol, req.Timeframe)
	close(req.Done)
}

// handleResetRequest clears all chart state for a symbol.
func (m *Manager) handleResetRequest(req *shared.ResetRequest) {
	c, ok := m.charts[req.Symbol]
	if ok {
		c.reset()
	}
	close(req.Done)
}

// handleBootstrapRequest pre-populates chart state from historical candles.
func (m *Manager) handleBootstrapRequest(req *shared.BootstrapRequest) {
	m.chartFor(req.Symbol).bootstrap(req.Candles)
	close(req.Done)
}

// Run manages the lifecycle processes of the chart manager.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-m.tickSignals:
			m.handleTick(&tick)
		case trade := <-m.tradeSignals:
			m.handleTrade(&trade)
		case req := <-m.seriesRequests:
			m.handleSeriesRequest(&req)
		case req := <-m.timeframeRequests:
			m.handleTimeframeRequest(&req)
		case req := <-m.resetRequests:
			m.handleResetRequest(&req)
		case req := <-m.bootstrapRequests:
			m.handleBootstrapRequest(&req)
		}
	}
}
