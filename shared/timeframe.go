package shared

import (
	"fmt"
)

// Timeframe represents the market data time period.
type Timeframe int

const (
	OneMinute Timeframe = iota
	FiveMinute
	FifteenMinute
	ThirtyMinute
	OneHour
	FourHour
	OneDay
	OneWeek
)

// String stringifies the provided timeframe.
func (t Timeframe) String() string {
	switch t {
	case OneMinute:
		return "1m"
	case FiveMinute:
		return "5m"
	case FifteenMinute:
		return "15m"
	case ThirtyMinute:
		return "30m"
	case OneHour:
		return "1h"
	case FourHour:
		return "4h"
	case OneDay:
		return "1d"
	case OneWeek:
		return "1w"
	default:
		return "unknown"
	}
}

// Seconds returns the width of the timeframe's bucket in seconds.
func (t Timeframe) Seconds() int64 {
	switch t {
	case OneMinute:
		return 60
	case FiveMinute:
		return 60 * 5
	case FifteenMinute:
		return 60 * 15
	case ThirtyMinute:
		return 60 * 30
	case OneHour:
		return 60 * 60
	case FourHour:
		return 60 * 60 * 4
	case OneDay:
		return 60 * 60 * 24
	case OneWeek:
		return 60 * 60 * 24 * 7
	default:
		return 60
	}
}

// BucketStart floors the provided epoch seconds timestamp to the start of its
// timeframe bucket.
func (t Timeframe) BucketStart(unixSeconds int64) int64 {
	width := t.Seconds()
	return unixSeconds - (unixSeconds % width)
}

// ParseTimeframe parses a timeframe from its string form.
func ParseTimeframe(timeframe string) (Timeframe, error) {
	switch timeframe {
	case "1m":
		return OneMinute, nil
	case "5m":
		return FiveMinute, nil
	case "15m":
		return FifteenMinute, nil
	case "30m":
		return ThirtyMinute, nil
	case "1h":
		return OneHour, nil
	case "4h":
		return FourHour, nil
	case "1d":
		return OneDay, nil
	case "1w":
		return OneWeek, nil
	default:
		return 0, fmt.Errorf("unknown timeframe provided: %s", timeframe)
	}
}
