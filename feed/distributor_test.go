package feed

import (
	"testing"

	"github.com/minax/marketfeed/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

func setupDistributor(t *testing.T, queueSize int) *Distributor {
	cfg := &DistributorConfig{
		QueueSize: queueSize,
		Logger:    &log.Logger,
	}

	distributor, err := NewDistributor(cfg)
	assert.NoError(t, err)

	return distributor
}

func tickAt(symbol string, eventTime int64, price float64) shared.Tick {
	return shared.Tick{
		Symbol:    symbol,
		EventTime: eventTime,
		LastPrice: price,
	}
}

func TestDistributorConfigValidate(t *testing.T) {
	// Ensure a negative queue size is rejected.
	cfg := &DistributorConfig{
		QueueSize: -1,
		Logger:    &log.Logger,
	}
	assert.Error(t, cfg.Validate())

	// Ensure a nil logger is rejected.
	cfg = &DistributorConfig{}
	assert.Error(t, cfg.Validate())

	// Ensure a zero queue size defaults.
	distributor := setupDistributor(t, 0)
	assert.Equal(t, distributor.cfg.QueueSize, defaultQueueSize)
}

func TestDistributorBroadcast(t *testing.T) {
	distributor := setupDistributor(t, 8)

	// Ensure broadcast consumers receive every tick regardless of symbol.
	id, ticks := distributor.SubscribeTicks()

	distributor.RelayTick(tickAt("BTCUSDT", 1000, 100))
	distributor.RelayTick(tickAt("ETHUSDT", 2000, 50))
	distributor.RelayTick(tickAt("BTCUSDT", 3000, 100))

	assert.Equal(t, len(ticks), 3)
	first := <-ticks
	assert.Equal(t, first.Symbol, "BTCUSDT")
	second := <-ticks
	assert.Equal(t, second.Symbol, "ETHUSDT")

	// Ensure unsubscribed consumers receive nothing further.
	distributor.Unsubscribe(id)
	distributor.RelayTick(tickAt("BTCUSDT", 4000, 101))
	assert.Equal(t, len(ticks), 1)
}

func TestDistributorSymbolFilter(t *testing.T) {
	distributor := setupDistributor(t, 8)

	// Ensure symbol-filtered consumers only receive matching ticks.
	_, ticks := distributor.TicksForSymbol("BTCUSDT")

	distributor.RelayTick(tickAt("ETHUSDT", 1000, 50))
	distributor.RelayTick(tickAt("BTCUSDT", 2000, 100))
	assert.Equal(t, len(ticks), 1)

	tick := <-ticks
	assert.Equal(t, tick.Symbol, "BTCUSDT")

	// Ensure ticks with an unchanged last price are suppressed.
	distributor.RelayTick(tickAt("BTCUSDT", 3000, 100))
	assert.Equal(t, len(ticks), 0)

	distributor.RelayTick(tickAt("BTCUSDT", 4000, 101))
	assert.Equal(t, len(ticks), 1)

	// Ensure broadcast consumers are never price-deduplicated.
	_, all := distributor.SubscribeTicks()
	distributor.RelayTick(tickAt("BTCUSDT", 5000, 102))
	distributor.RelayTick(tickAt("BTCUSDT", 6000, 102))
	assert.Equal(t, len(all), 2)
}

func TestDistributorTrades(t *testing.T) {
	distributor := setupDistributor(t, 8)

	_, trades := distributor.TradesForSymbol("BTCUSDT")
	_, all := distributor.SubscribeTrades()

	trade := shared.Trade{
		Symbol:    "BTCUSDT",
		TradeID:   1,
		Price:     100,
		Quantity:  0.5,
		TradeTime: 1000,
	}

	// Ensure trades route to matching and broadcast consumers.
	distributor.RelayTrade(trade)
	assert.Equal(t, len(trades), 1)
	assert.Equal(t, len(all), 1)

	// Ensure repeated prices are never suppressed for trades.
	trade.TradeID = 2
	distributor.RelayTrade(trade)
	assert.Equal(t, len(trades), 2)

	other := shared.Trade{
		Symbol:    "ETHUSDT",
		TradeID:   3,
		Price:     50,
		Quantity:  1,
		TradeTime: 2000,
	}
	distributor.RelayTrade(other)
	assert.Equal(t, len(trades), 2)
	assert.Equal(t, len(all), 3)
}

func TestDistributorDropOldest(t *testing.T) {
	queueSize := 3
	distributor := setupDistributor(t, queueSize)

	// Ensure relaying to a full queue drops the oldest entry and never blocks.
	_, ticks := distributor.SubscribeTicks()

	for idx := 0; idx < 5; idx++ {
		distributor.RelayTick(tickAt("BTCUSDT", int64(idx+1)*1000, float64(100+idx)))
	}

	assert.Equal(t, len(ticks), queueSize)

	// Ensure the retained entries are the newest ones.
	tick := <-ticks
	assert.Equal(t, tick.LastPrice, float64(102))
	tick = <-ticks
	assert.Equal(t, tick.LastPrice, float64(103))
	tick = <-ticks
	assert.Equal(t, tick.LastPrice, float64(104))
}
