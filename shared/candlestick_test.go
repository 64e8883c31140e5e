package shared

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

func TestFetchSentiment(t *testing.T) {
	// Ensure candle sentiment derives from the close relative to the open.
	tests := []struct {
		name   string
		candle Candlestick
		want   Sentiment
	}{
		{
			name:   "bullish candle",
			candle: Candlestick{Open: 100, Close: 101},
			want:   Bullish,
		},
		{
			name:   "bearish candle",
			candle: Candlestick{Open: 100, Close: 99},
			want:   Bearish,
		},
		{
			name:   "neutral candle",
			candle: Candlestick{Open: 100, Close: 100},
			want:   Neutral,
		},
	}

	for _, test := range tests {
		sentiment := test.candle.FetchSentiment()
		if !cmp.Equal(sentiment, test.want) {
			t.Errorf("%s: mismatching sentiment, got %v", test.name, cmp.Diff(sentiment, test.want))
		}
	}
}

func TestChartSeriesSnapshotIndependence(t *testing.T) {
	// Ensure copied series values share no mutable candle state.
	current := &Candlestick{Open: 100, Close: 101, Start: 60}
	series := ChartSeries{
		Symbol:    "BTCUSDT",
		Timeframe: OneMinute,
		Candles:   []Candlestick{{Open: 99, Close: 100, Start: 0}},
		Current:   current,
	}

	clone := series
	copied := *series.Current
	clone.Current = &copied
	clone.Current.Close = 200

	assert.Equal(t, current.Close, float64(101))
	if !cmp.Equal(series.Candles, clone.Candles) {
		t.Errorf("mismatching candles, got %v", cmp.Diff(series.Candles, clone.Candles))
	}
}
