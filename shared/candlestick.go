package shared

// Candlestick represents a unit candlestick for a symbol.
type Candlestick struct {
	Open   float64
	Low    float64
	High   float64
	Close  float64
	Volume float64
	Start  int64 // bucket start, epoch seconds.

	// Metadata fields.
	Symbol    string
	Timeframe Timeframe
}

// Sentiment represents the candlestick sentiment.
type Sentiment int

const (
	Neutral Sentiment = iota
	Bullish
	Bearish
)

// FetchSentiment returns the provided candlestick's sentiment.
func (c *Candlestick) FetchSentiment() Sentiment {
	sentiment := c.Close - c.Open
	switch {
	case sentiment < 0:
		return Bearish
	case sentiment > 0:
		return Bullish
	default:
		return Neutral
	}
}

// LinePoint represents a single price observation for a line series. Line
// points are appended per tick and are independent of candle bucketing.
type LinePoint struct {
	Time  int64 // epoch seconds.
	Value float64
}

// VolumeBar represents a bucketed volume histogram entry. Bars share bucket
// boundaries with candlesticks and derive their sign from the same bucket's
// candle.
type VolumeBar struct {
	Start    int64 // bucket start, epoch seconds.
	Value    float64
	Positive bool
}

// ChartSeries is a read-only snapshot of the derived chart representations
// for a symbol.
type ChartSeries struct {
	Symbol    string
	Timeframe Timeframe
	Candles   []Candlestick // closed candles, bucket start ascending.
	Current   *Candlestick  // in-progress candle, nil when none is open.
	Line      []LinePoint
	Volume    []VolumeBar
}
