// Package service wires the feed subsystem together: the hub connection, the
// subscription registry, the tick distributor and the chart manager.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/minax/marketfeed/chart"
	"github.com/minax/marketfeed/feed"
	"github.com/minax/marketfeed/hub"
	"github.com/minax/marketfeed/shared"
	"github.com/minax/marketfeed/sub"
	"github.com/rs/zerolog"
)

const (
	// notificationBuffer is the buffer size for the error notification stream.
	notificationBuffer = 32
	// stateBuffer is the buffer size for the connection state stream.
	stateBuffer = 16
	// defaultHistoryLimit is the number of historical candles fetched per
	// symbol selection.
	defaultHistoryLimit = 500
	// watchdogInterval is the interval for the connection watchdog job.
	watchdogIntervalSeconds = 30
	// reseedInterval is the interval for the ticker snapshot reseed job.
	reseedIntervalSeconds = 300
)

// FeedConfig represents the configuration struct for the feed service.
type FeedConfig struct {
	// HubURL is the websocket url of the market data hub.
	HubURL string
	// Fetcher bootstraps chart state from the hub's rest api.
	Fetcher shared.HistoricFetcher
	// Timeframe is the initial aggregation timeframe.
	Timeframe shared.Timeframe
	// Capacity is the maximum number of entries retained per chart series.
	Capacity int
	// QueueSize is the buffer size for distributor consumer queues.
	QueueSize int
	// HistoryLimit is the number of historical candles fetched per symbol
	// selection. Defaults to defaultHistoryLimit when zero.
	HistoryLimit int
	// Dialer establishes hub connections. Defaults to the websocket dialer.
	Dialer hub.Dialer
	// JobScheduler schedules the periodic maintenance jobs.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *FeedConfig) Validate() error {
	var errs error

	if cfg.HubURL == "" {
		errs = errors.Join(errs, fmt.Errorf("hub url cannot be an empty string"))
	}
	if cfg.Fetcher == nil {
		errs = errors.Join(errs, fmt.Errorf("fetcher cannot be nil"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Feed represents the live market data feed service.
type Feed struct {
	cfg           *FeedConfig
	hubManager    *hub.Manager
	registry      *sub.Registry
	distributor   *feed.Distributor
	chartManager  *chart.Manager
	notifications chan string
	stateSignals  chan shared.ConnectionState

	statsMtx sync.RWMutex
	stats    map[string]shared.TickerSnapshot

	watchMtx   sync.Mutex
	watched    string
	timeframes map[string]shared.Timeframe

	wg sync.WaitGroup
}

// NewFeed initializes a new feed service.
func NewFeed(cfg *FeedConfig) (*Feed, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating feed service config: %w", err)
	}

	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.Dialer == nil {
		cfg.Dialer = hub.NewWSDialer()
	}

	f := &Feed{
		cfg:           cfg,
		notifications: make(chan string, notificationBuffer),
		stateSignals:  make(chan shared.ConnectionState, stateBuffer),
		stats:         make(map[string]shared.TickerSnapshot),
		timeframes:    make(map[string]shared.Timeframe),
	}

	distributorLogger := cfg.Logger.With().Str("component", "distributor").Logger()
	f.distributor, err = feed.NewDistributor(&feed.DistributorConfig{
		QueueSize: cfg.QueueSize,
		Logger:    &distributorLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating distributor: %w", err)
	}

	chartLogger := cfg.Logger.With().Str("component", "chartmanager").Logger()
	f.chartManager, err = chart.NewManager(&chart.ManagerConfig{
		Capacity:     cfg.Capacity,
		Timeframe:    cfg.Timeframe,
		CandleSource: shared.TickerStream,
		Logger:       &chartLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chart manager: %w", err)
	}

	hubLogger := cfg.Logger.With().Str("component", "hubmanager").Logger()
	f.hubManager, err = hub.NewManager(&hub.ManagerConfig{
		URL:        cfg.HubURL,
		Dialer:     cfg.Dialer,
		RelayTick:  f.distributor.RelayTick,
		RelayTrade: f.distributor.RelayTrade,
		ReplaySubscriptions: func(ctx context.Context) {
			if f.registry != nil {
				f.registry.ReplayAll(ctx)
			}
		},
		SignalConnectionState: f.signalConnectionState,
		Notify:                f.notify,
		Logger:                &hubLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating hub manager: %w", err)
	}

	registryLogger := cfg.Logger.With().Str("component", "registry").Logger()
	f.registry, err = sub.NewRegistry(&sub.RegistryConfig{
		EnsureConnected: f.hubManager.Connect,
		Invoke:          f.hubManager.Invoke,
		Notify:          f.notify,
		Logger:          &registryLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating subscription registry: %w", err)
	}

	return f, nil
}

// notify relays a human readable notification to the error stream, dropping
// it when no consumer is keeping up.
func (f *Feed) notify(message string) {
	select {
	case f.notifications <- message:
		// do nothing.
	default:
		f.cfg.Logger.Error().Msgf("notification channel at capacity: %d/%d",
			len(f.notifications), notificationBuffer)
	}
}

// signalConnectionState relays a connection state transition to observers.
func (f *Feed) signalConnectionState(state shared.ConnectionState) {
	select {
	case f.stateSignals <- state:
		// do nothing.
	default:
		f.cfg.Logger.Warn().Msgf("connection state channel at capacity: %d/%d",
			len(f.stateSignals), stateBuffer)
	}
}

// Notifications returns the stream of human readable error notifications.
func (f *Feed) Notifications() <-chan string {
	return f.notifications
}

// ConnectionStates returns the stream of connection state transitions.
func (f *Feed) ConnectionStates() <-chan shared.ConnectionState {
	return f.stateSignals
}

// State returns the current hub connection state.
func (f *Feed) State() shared.ConnectionState {
	return f.hubManager.State()
}

// ActiveSubscriptions returns the active ticker and trade membership sets.
func (f *Feed) ActiveSubscriptions() (tickers []string, trades []string) {
	return f.registry.ActiveSubscriptions()
}

// TickerStream registers a broadcast consumer for all inbound ticks.
func (f *Feed) TickerStream() (string, <-chan shared.Tick) {
	return f.distributor.SubscribeTicks()
}

// TradeStream registers a broadcast consumer for all inbound trades.
func (f *Feed) TradeStream() (string, <-chan shared.Trade) {
	return f.distributor.SubscribeTrades()
}

// Unsubscribe detaches the stream consumer with the provided id.
func (f *Feed) Unsubscribe(id string) {
	f.distributor.Unsubscribe(id)
}

// Stats returns the most recent daily stats observed for the provided symbol.
func (f *Feed) Stats(symbol string) (shared.TickerSnapshot, bool) {
	f.statsMtx.RLock()
	defer f.statsMtx.RUnlock()

	stats, ok := f.stats[symbol]
	return stats, ok
}

// updateStats folds a tick's daily stats into the stats cache.
func (f *Feed) updateStats(tick *shared.Tick) {
	f.statsMtx.Lock()
	defer f.statsMtx.Unlock()

	f.stats[tick.Symbol] = shared.TickerSnapshot{
		Symbol:      tick.Symbol,
		LastPrice:   tick.LastPrice,
		OpenPrice:   tick.OpenPrice,
		HighPrice:   tick.HighPrice,
		LowPrice:    tick.LowPrice,
		BaseVolume:  tick.BaseVolume,
		QuoteVolume: tick.QuoteVolume,
		CloseTime:   tick.EventTime,
	}
}

// timeframeFor returns the aggregation timeframe in effect for a symbol.
func (f *Feed) timeframeFor(symbol string) shared.Timeframe {
	f.watchMtx.Lock()
	defer f.watchMtx.Unlock()

	timeframe, ok := f.timeframes[symbol]
	if !ok {
		return f.cfg.Timeframe
	}

	return timeframe
}

// Series returns a read-only snapshot of the chart series for a symbol.
func (f *Feed) Series(ctx context.Context, symbol string) (shared.ChartSeries, error) {
	req := shared.NewSeriesRequest(symbol)
	f.chartManager.SendSeriesRequest(req)

	select {
	case <-ctx.Done():
		return shared.ChartSeries{}, ctx.Err()
	case <-time.After(shared.TimeoutDuration):
		return shared.ChartSeries{}, fmt.Errorf("timed out fetching series for %s", symbol)
	case series := <-req.Response:
		return series, nil
	}
}

// SetTimeframe switches the aggregation timeframe for a symbol. The symbol's
// bucketed series are rebuilt from retained history.
func (f *Feed) SetTimeframe(ctx context.Context, symbol string, timeframe shared.Timeframe) error {
	req := shared.NewTimeframeRequest(symbol, timeframe)
	f.chartManager.SendTimeframeRequest(req)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(shared.TimeoutDuration):
		return fmt.Errorf("timed out setting timeframe for %s", symbol)
	case <-req.Done:
	}

	f.watchMtx.Lock()
	f.timeframes[symbol] = timeframe
	f.watchMtx.Unlock()

	return nil
}

// reset clears all chart state for a symbol.
func (f *Feed) reset(symbol string) {
	req := shared.NewResetRequest(symbol)
	f.chartManager.SendResetRequest(req)

	select {
	case <-time.After(shared.TimeoutDuration):
	case <-req.Done:
	}
}

// bootstrap pre-populates chart state for a symbol: historical candles when
// the rest api has them, a snapshot-seeded tick as fallback, or nothing, in
// which case the chart starts empty and fills from live ticks.
func (f *Feed) bootstrap(ctx context.Context, symbol string) {
	timeframe := f.timeframeFor(symbol)

	candles, err := f.cfg.Fetcher.FetchHistoricCandles(ctx, symbol, timeframe, f.cfg.HistoryLimit)
	if err == nil && len(candles) > 0 {
		req := shared.NewBootstrapRequest(symbol, candles)
		f.chartManager.SendBootstrapRequest(req)

		select {
		case <-time.After(shared.TimeoutDuration):
		case <-req.Done:
		}
		return
	}

	if err != nil {
		f.cfg.Logger.Error().Msgf("fetching historical candles for %s: %v", symbol, err)
	}

	snapshot, err := f.cfg.Fetcher.FetchTickerSnapshot(ctx, symbol)
	if err != nil {
		f.cfg.Logger.Error().Msgf("fetching ticker snapshot for %s: %v", symbol, err)
		f.notify(fmt.Sprintf("Failed to bootstrap chart data for %s", symbol))
		return
	}

	seed := shared.Tick{
		Symbol:      symbol,
		EventTime:   snapshot.CloseTime,
		LastPrice:   snapshot.LastPrice,
		OpenPrice:   snapshot.OpenPrice,
		HighPrice:   snapshot.HighPrice,
		LowPrice:    snapshot.LowPrice,
		BaseVolume:  snapshot.BaseVolume,
		QuoteVolume: snapshot.QuoteVolume,
	}
	if seed.EventTime == 0 {
		seed.EventTime = time.Now().UnixMilli()
	}
	f.chartManager.SendTick(seed)
}

// WatchSymbol switches the feed to the provided symbol: the previous symbol
// is unsubscribed and its chart state cleared, the new symbol's chart is
// bootstrapped and its ticker and trade streams subscribed.
func (f *Feed) WatchSymbol(ctx context.Context, symbol string) error {
	f.watchMtx.Lock()
	previous := f.watched
	if previous == symbol {
		f.watchMtx.Unlock()
		return nil
	}
	f.watched = symbol
	f.watchMtx.Unlock()

	if previous != "" {
		_ = f.registry.Unsubscribe(ctx, previous, shared.TickerStream)
		_ = f.registry.Unsubscribe(ctx, previous, shared.TradeStream)
		f.reset(previous)
	}

	f.reset(symbol)
	f.bootstrap(ctx, symbol)

	var errs error
	err := f.registry.Subscribe(ctx, symbol, shared.TickerStream)
	if err != nil {
		errs = errors.Join(errs, err)
	}

	err = f.registry.Subscribe(ctx, symbol, shared.TradeStream)
	if err != nil {
		errs = errors.Join(errs, err)
	}

	return errs
}

// pumpStreams forwards broadcast ticks and trades from the distributor into
// the chart manager and the stats cache.
func (f *Feed) pumpStreams(ctx context.Context) {
	tickID, ticks := f.distributor.SubscribeTicks()
	tradeID, trades := f.distributor.SubscribeTrades()
	defer f.distributor.Unsubscribe(tickID)
	defer f.distributor.Unsubscribe(tradeID)

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticks:
			f.updateStats(&tick)
			f.chartManager.SendTick(tick)
		case trade := <-trades:
			f.chartManager.SendTrade(trade)
		}
	}
}

// scheduleJobs registers the periodic maintenance jobs: the connection
// watchdog and the ticker snapshot reseed.
func (f *Feed) scheduleJobs(ctx context.Context) {
	_, err := f.cfg.JobScheduler.Every(watchdogIntervalSeconds).Seconds().Do(func() {
		if f.State() == shared.Errored {
			err := f.hubManager.Connect(ctx)
			if err != nil {
				f.cfg.Logger.Error().Msgf("watchdog reconnect failed: %v", err)
			}
		}
	})
	if err != nil {
		f.cfg.Logger.Error().Msgf("scheduling connection watchdog: %v", err)
	}

	_, err = f.cfg.JobScheduler.Every(reseedIntervalSeconds).Seconds().Do(func() {
		f.watchMtx.Lock()
		watched := f.watched
		f.watchMtx.Unlock()
		if watched == "" {
			return
		}

		snapshot, err := f.cfg.Fetcher.FetchTickerSnapshot(ctx, watched)
		if err != nil {
			f.cfg.Logger.Warn().Msgf("reseeding ticker snapshot for %s: %v", watched, err)
			return
		}

		f.statsMtx.Lock()
		f.stats[watched] = *snapshot
		f.statsMtx.Unlock()
	})
	if err != nil {
		f.cfg.Logger.Error().Msgf("scheduling snapshot reseed: %v", err)
	}

	f.cfg.JobScheduler.StartAsync()
}

// Run handles the lifecycle processes of the feed service.
func (f *Feed) Run(ctx context.Context) {
	f.wg.Add(2)

	go func() {
		f.chartManager.Run(ctx)
		f.wg.Done()
	}()

	go func() {
		f.pumpStreams(ctx)
		f.wg.Done()
	}()

	err := f.hubManager.Connect(ctx)
	if err != nil {
		// The watchdog retries errored connections.
		f.cfg.Logger.Error().Msgf("connecting to hub: %v", err)
	}

	f.scheduleJobs(ctx)

	<-ctx.Done()

	f.cfg.JobScheduler.Stop()
	err = f.hubManager.Disconnect()
	if err != nil {
		f.cfg.Logger.Error().Msgf("disconnecting from hub: %v", err)
	}

	f.wg.Wait()
}
