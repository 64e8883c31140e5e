package hub

import (
	"fmt"

	"github.com/minax/marketfeed/shared"
	"github.com/tidwall/gjson"
)

// Inbound frame event tags.
const (
	tickerUpdateEvent            = "TickerUpdate"
	tradeUpdateEvent             = "TradeUpdate"
	subscriptionConfirmedEvent   = "SubscriptionConfirmed"
	subscriptionErrorEvent       = "SubscriptionError"
	unsubscriptionConfirmedEvent = "UnsubscriptionConfirmed"
)

// handleMessage routes an inbound hub frame by its event tag. Malformed
// frames are dropped with a warning so one bad message never stalls the feed.
func (m *Manager) handleMessage(msg []byte) {
	if !gjson.ValidBytes(msg) {
		m.cfg.Logger.Warn().Msgf("dropping malformed hub frame: %.128s", string(msg))
		return
	}

	frame := gjson.ParseBytes(msg)
	event := frame.Get("event").String()
	data := frame.Get("data")

	switch event {
	case tickerUpdateEvent:
		tick := parseTick(data)
		err := tick.Validate()
		if err != nil {
			m.cfg.Logger.Warn().Msgf("dropping invalid ticker update: %v", err)
			return
		}
		m.cfg.RelayTick(tick)

	case tradeUpdateEvent:
		trade := parseTrade(data)
		err := trade.Validate()
		if err != nil {
			m.cfg.Logger.Warn().Msgf("dropping invalid trade update: %v", err)
			return
		}
		m.cfg.RelayTrade(trade)

	case subscriptionConfirmedEvent:
		m.cfg.Logger.Debug().Msgf("subscription confirmed: %s for %s",
			data.Get("type").String(), data.Get("symbol").String())

	case subscriptionErrorEvent:
		kind := data.Get("type").String()
		symbol := data.Get("symbol").String()
		reason := data.Get("error").String()
		m.cfg.Logger.Error().Msgf("subscription error: %s for %s: %s", kind, symbol, reason)
		m.cfg.Notify(fmt.Sprintf("Failed to subscribe to %s for %s: %s", kind, symbol, reason))

	case unsubscriptionConfirmedEvent:
		m.cfg.Logger.Debug().Msgf("unsubscription confirmed: %s for %s",
			data.Get("type").String(), data.Get("symbol").String())

	default:
		m.cfg.Logger.Warn().Msgf("unknown hub event: %s", event)
	}
}

// parseTick parses a ticker update payload.
func parseTick(data gjson.Result) shared.Tick {
	return shared.Tick{
		Symbol:      data.Get("symbol").String(),
		EventTime:   data.Get("eventTime").Int(),
		LastPrice:   data.Get("lastPrice").Float(),
		OpenPrice:   data.Get("openPrice").Float(),
		HighPrice:   data.Get("highPrice").Float(),
		LowPrice:    data.Get("lowPrice").Float(),
		BaseVolume:  data.Get("totalTradedBaseAssetVolume").Float(),
		QuoteVolume: data.Get("totalTradedQuoteAssetVolume").Float(),
	}
}

// parseTrade parses a trade update payload.
func parseTrade(data gjson.Result) shared.Trade {
	return shared.Trade{
		Symbol:     data.Get("symbol").String(),
		TradeID:    data.Get("tradeId").Int(),
		Price:      data.Get("price").Float(),
		Quantity:   data.Get("quantity").Float(),
		TradeTime:  data.Get("tradeTime").Int(),
		BuyerMaker: data.Get("isBuyerMarketMaker").Bool(),
	}
}
