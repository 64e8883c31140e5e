// Package feed fans inbound market data out to interested consumers. Every
// consumer owns a bounded queue with drop-oldest overflow, so a slow consumer
// can never stall the hub connection's read path.
package feed

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/minax/marketfeed/shared"
	"github.com/rs/zerolog"
)

const (
	// defaultQueueSize is the default buffer size for consumer queues.
	defaultQueueSize = 64
)

// DistributorConfig represents the tick distributor configuration.
type DistributorConfig struct {
	// QueueSize is the buffer size for each consumer queue. Defaults to
	// defaultQueueSize when zero.
	QueueSize int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DistributorConfig) Validate() error {
	var errs error

	if cfg.QueueSize < 0 {
		errs = errors.Join(errs, fmt.Errorf("queue size cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// tickStream represents a registered tick consumer. A stream with an empty
// symbol receives all ticks; a symbol-filtered stream additionally suppresses
// ticks whose last price is unchanged from the previous delivered tick.
type tickStream struct {
	id        string
	symbol    string
	ch        chan shared.Tick
	lastPrice float64
	hasLast   bool
}

// tradeStream represents a registered trade consumer. Trade streams are never
// price-deduplicated; trade ids are unique per exchange trade.
type tradeStream struct {
	id     string
	symbol string
	ch     chan shared.Trade
}

// Distributor routes inbound ticks and trades to registered consumers.
type Distributor struct {
	cfg    *DistributorConfig
	mtx    sync.RWMutex
	ticks  map[string]*tickStream
	trades map[string]*tradeStream
}

// NewDistributor initializes a new tick distributor.
func NewDistributor(cfg *DistributorConfig) (*Distributor, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating distributor config: %w", err)
	}

	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}

	return &Distributor{
		cfg:    cfg,
		ticks:  make(map[string]*tickStream),
		trades: make(map[string]*tradeStream),
	}, nil
}

// SubscribeTicks registers a broadcast consumer for all inbound ticks.
func (d *Distributor) SubscribeTicks() (string, <-chan shared.Tick) {
	return d.addTickStream("")
}

// TicksForSymbol registers a consumer for ticks matching the provided symbol.
func (d *Distributor) TicksForSymbol(symbol string) (string, <-chan shared.Tick) {
	return d.addTickStream(symbol)
}

// SubscribeTrades registers a broadcast consumer for all inbound trades.
func (d *Distributor) SubscribeTrades() (string, <-chan shared.Trade) {
	return d.addTradeStream("")
}

// TradesForSymbol registers a consumer for trades matching the provided symbol.
func (d *Distributor) TradesForSymbol(symbol string) (string, <-chan shared.Trade) {
	return d.addTradeStream(symbol)
}

func (d *Distributor) addTickStream(symbol string) (string, <-chan shared.Tick) {
	stream := &tickStream{
		id:     uuid.New().String(),
		symbol: symbol,
		ch:     make(chan shared.Tick, d.cfg.QueueSize),
	}

	d.mtx.Lock()
	d.ticks[stream.id] = stream
	d.mtx.Unlock()

	return stream.id, stream.ch
}

func (d *Distributor) addTradeStream(symbol string) (string, <-chan shared.Trade) {
	stream := &tradeStream{
		id:     uuid.New().String(),
		symbol: symbol,
		ch:     make(chan shared.Trade, d.cfg.QueueSize),
	}

	d.mtx.Lock()
	d.trades[stream.id] = stream
	d.mtx.Unlock()

	return stream.id, stream.ch
}

// Unsubscribe detaches the consumer with the provided id. Detachment is
// effective immediately; no further events are routed to its queue.
func (d *Distributor) Unsubscribe(id string) {
	d.mtx.Lock()
	delete(d.ticks, id)
	delete(d.trades, id)
	d.mtx.Unlock()
}

// RelayTick routes the provided tick to all matching consumers without
// blocking. Called from the hub connection's read loop.
func (d *Distributor) RelayTick(tick shared.Tick) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	for _, stream := range d.ticks {
		if stream.symbol != "" {
			if stream.symbol != tick.Symbol {
				continue
			}
			if stream.hasLast && stream.lastPrice == tick.LastPrice {
				// Redundant update, the price is unchanged for this symbol.
				continue
			}
			stream.lastPrice = tick.LastPrice
			stream.hasLast = true
		}

		d.offerTick(stream, tick)
	}
}

// RelayTrade routes the provided trade to all matching consumers without
// blocking. Called from the hub connection's read loop.
func (d *Distributor) RelayTrade(trade shared.Trade) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	for _, stream := range d.trades {
		if stream.symbol != "" && stream.symbol != trade.Symbol {
			continue
		}

		d.offerTrade(stream, trade)
	}
}

// offerTick enqueues a tick, evicting the oldest queued entry when the
// consumer's queue is full.
func (d *Distributor) offerTick(stream *tickStream, tick shared.Tick) {
	select {
	case stream.ch <- tick:
		return
	default:
	}

	d.cfg.Logger.Warn().Msgf("tick queue %s at capacity: %d/%d, dropping oldest",
		stream.id, len(stream.ch), d.cfg.QueueSize)

	select {
	case <-stream.ch:
	default:
	}
	select {
	case stream.ch <- tick:
	default:
	}
}

// offerTrade enqueues a trade, evicting the oldest queued entry when the
// consumer's queue is full.
func (d *Distributor) offerTrade(stream *tradeStream, trade shared.Trade) {
	select {
	case stream.ch <- trade:
		return
	default:
	}

	d.cfg.Logger.Warn().Msgf("trade queue %s at capacity: %d/%d, dropping oldest",
		stream.id, len(stream.ch), d.cfg.QueueSize)

	select {
	case <-stream.ch:
	default:
	}
	select {
	case stream.ch <- trade:
	default:
	}
}
