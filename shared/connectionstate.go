package shared

import "errors"

// ErrNotConnected indicates a remote call was attempted without an
// established hub connection. Callers treat it as transient; the pending
// work is retried once the connection is re-established.
var ErrNotConnected = errors.New("hub connection not established")

// ConnectionState represents the state of the hub connection.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
	Errored
)

// String stringifies the provided connection state.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Named remote invocations supported by the market data hub.
const (
	SubscribeToTicker     = "SubscribeToTicker"
	UnsubscribeFromTicker = "UnsubscribeFromTicker"
	SubscribeToTrades     = "SubscribeToTrades"
	UnsubscribeFromTrades = "UnsubscribeFromTrades"
)

// StreamKind represents the kind of market data stream for a subscription.
type StreamKind int

const (
	TickerStream StreamKind = iota
	TradeStream
)

// String stringifies the provided stream kind.
func (k StreamKind) String() string {
	switch k {
	case TickerStream:
		return "ticker"
	case TradeStream:
		return "trade"
	default:
		return "unknown"
	}
}
