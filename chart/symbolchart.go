package chart

import (
	"github.com/minax/marketfeed/shared"
)

// symbolChart holds the aggregation state and derived series for one symbol.
// All mutation happens on the chart manager's run goroutine, which preserves
// tick arrival order per symbol.
//
// The bucketed series (candles and volume bars) are bound to a single feed
// source. Ticker feeds carry cumulative daily volume (replace semantics) and
// trade feeds carry per-trade quantity (sum semantics); folding both into one
// candle would leave its volume meaning neither. Events from the unbound
// source still land in the line series.
type symbolChart struct {
	symbol    string
	timeframe shared.Timeframe
	capacity  int
	source    shared.StreamKind

	candles *ring[shared.Candlestick]
	line    *ring[shared.LinePoint]
	volume  *ring[shared.VolumeBar]

	// current is the in-progress candle for the bucket containing the most
	// recent tick, with its matching volume bar. Both are nil until the first
	// tick arrives and after a reset.
	current       *shared.Candlestick
	currentVolume *shared.VolumeBar
}

// newSymbolChart initializes aggregation state for a symbol. The source
// selects which stream kind drives the bucketed series.
func newSymbolChart(symbol string, timeframe shared.Timeframe, capacity int, source shared.StreamKind) *symbolChart {
	return &symbolChart{
		symbol:    symbol,
		timeframe: timeframe,
		capacity:  capacity,
		source:    source,
		candles:   newRing[shared.Candlestick](capacity),
		line:      newRing[shared.LinePoint](capacity),
		volume:    newRing[shared.VolumeBar](capacity),
	}
}

// applyTick folds a ticker update into the symbol's series. Ticker feeds
// carry the cumulative daily base volume, so the in-progress candle's volume
// is replaced rather than summed, which makes replayed ticks idempotent.
// On a trade bound chart the tick only extends the line series.
func (c *symbolChart) applyTick(tick *shared.Tick) {
	sec := tick.EventTimeSeconds()
	price := tick.LastPrice

	c.line.append(shared.LinePoint{Time: sec, Value: price})

	if c.source != shared.TickerStream {
		return
	}

	bucket := c.timeframe.BucketStart(sec)
	if c.current == nil || c.current.Start != bucket {
		c.closeCurrent()
		c.openBucket(bucket, price, tick.BaseVolume)
	} else {
		cur := c.current
		if price > cur.High {
			cur.High = price
		}
		if price < cur.Low {
			cur.Low = price
		}
		cur.Close = price
		cur.Volume = tick.BaseVolume
	}

	c.syncCurrentVolume()
}

// applyTrade folds an executed trade into the symbol's series. Trade feeds
// carry per-trade quantity, so volume is summed. Duplicate trades double
// count; trade id deduplication is the upstream caller's responsibility.
// On a ticker bound chart the trade only extends the line series.
func (c *symbolChart) applyTrade(trade *shared.Trade) {
	sec := trade.TradeTimeSeconds()
	price := trade.Price

	c.line.append(shared.LinePoint{Time: sec, Value: price})

	if c.source != shared.TradeStream {
		return
	}

	bucket := c.timeframe.BucketStart(sec)
	if c.current == nil || c.current.Start != bucket {
		c.closeCurrent()
		c.openBucket(bucket, price, trade.Quantity)
	} else {
		cur := c.current
		if price > cur.High {
			cur.High = price
		}
		if price < cur.Low {
			cur.Low = price
		}
		cur.Close = price
		cur.Volume += trade.Quantity
	}

	c.syncCurrentVolume()
}

// closeCurrent finalizes the in-progress candle and volume bar, appending
// them to the closed series.
func (c *symbolChart) closeCurrent() {
	if c.current == nil {
		return
	}

	c.candles.append(*c.current)
	c.volume.append(*c.currentVolume)
	c.current = nil
	c.currentVolume = nil
}

// openBucket starts a new in-progress candle for the provided bucket.
func (c *symbolChart) openBucket(bucket int64, price float64, volume float64) {
	c.current = &shared.Candlestick{
		Symbol:    c.symbol,
		Timeframe: c.timeframe,
		Start:     bucket,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    volume,
	}
	c.currentVolume = &shared.VolumeBar{
		Start:    bucket,
		Value:    volume,
		Positive: true,
	}
}

// syncCurrentVolume keeps the in-progress volume bar aligned with the
// in-progress candle. The bar's sign derives from the same bucket's candle.
func (c *symbolChart) syncCurrentVolume() {
	if c.current == nil {
		return
	}

	c.currentVolume.Value = c.current.Volume
	c.currentVolume.Positive = c.current.Close >= c.current.Open
}

// setTimeframe switches the aggregation timeframe and rebuilds the bucketed
// series, so candles computed under different timeframes are never mixed in
// one sequence.
func (c *symbolChart) setTimeframe(timeframe shared.Timeframe) {
	if timeframe == c.timeframe {
		return
	}

	c.timeframe = timeframe
	c.rebuild()
}

// rebuild regenerates the candle and volume series from the retained line
// point history under the current timeframe, or clears them when no raw
// history remains. Line points carry no volume, so rebuilt buckets report
// zero volume until live data arrives.
func (c *symbolChart) rebuild() {
	c.candles.clear()
	c.volume.clear()
	c.current = nil
	c.currentVolume = nil

	points := c.line.all()
	for idx := range points {
		price := points[idx].Value
		bucket := c.timeframe.BucketStart(points[idx].Time)

		if c.current == nil || c.current.Start != bucket {
			c.closeCurrent()
			c.openBucket(bucket, price, 0)
			continue
		}

		cur := c.current
		if price > cur.High {
			cur.High = price
		}
		if price < cur.Low {
			cur.Low = price
		}
		cur.Close = price
		c.syncCurrentVolume()
	}
}

// bootstrap pre-populates the closed candle and volume series from
// historical candles, expected in ascending bucket order.
func (c *symbolChart) bootstrap(candles []shared.Candlestick) {
	for idx := range candles {
		candle := candles[idx]
		candle.Symbol = c.symbol
		candle.Timeframe = c.timeframe

		c.candles.append(candle)
		c.volume.append(shared.VolumeBar{
			Start:    candle.Start,
			Value:    candle.Volume,
			Positive: candle.Close >= candle.Open,
		})
	}
}

// reset clears all series and in-progress state for the symbol.
func (c *symbolChart) reset() {
	c.candles.clear()
	c.line.clear()
	c.volume.clear()
	c.current = nil
	c.currentVolume = nil
}

// series returns a read-only snapshot of the symbol's derived series.
func (c *symbolChart) series() shared.ChartSeries {
	snapshot := shared.ChartSeries{
		Symbol:    c.symbol,
		Timeframe: c.timeframe,
		Candles:   c.candles.all(),
		Line:      c.line.all(),
		Volume:    c.volume.all(),
	}

	if c.current != nil {
		current := *c.current
		snapshot.Current = &current
	}

	return snapshot
}
