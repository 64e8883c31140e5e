package sub

import (
	"context"
	"fmt"
	"testing"

	"github.com/minax/marketfeed/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

type mockHub struct {
	connectErr  error
	connects    int
	invokeErrs  map[string]error
	invocations []string
}

func (h *mockHub) ensureConnected(_ context.Context) error {
	h.connects++
	return h.connectErr
}

func (h *mockHub) invoke(method string, symbol string) error {
	key := method + ":" + symbol
	if err, ok := h.invokeErrs[key]; ok {
		return err
	}

	h.invocations = append(h.invocations, key)

	return nil
}

func setupRegistry(t *testing.T, hub *mockHub) (*Registry, chan string) {
	notifications := make(chan string, 16)

	cfg := &RegistryConfig{
		EnsureConnected: hub.ensureConnected,
		Invoke:          hub.invoke,
		Notify: func(message string) {
			notifications <- message
		},
		Logger: &log.Logger,
	}

	registry, err := NewRegistry(cfg)
	assert.NoError(t, err)

	return registry, notifications
}

func TestRegistryConfigValidate(t *testing.T) {
	hub := &mockHub{}
	notify := func(message string) {}

	tests := []struct {
		name    string
		cfg     *RegistryConfig
		wantErr bool
	}{
		{
			name:    "missing everything",
			cfg:     &RegistryConfig{},
			wantErr: true,
		},
		{
			name: "missing invoke",
			cfg: &RegistryConfig{
				EnsureConnected: hub.ensureConnected,
				Notify:          notify,
				Logger:          &log.Logger,
			},
			wantErr: true,
		},
		{
			name: "valid config",
			cfg: &RegistryConfig{
				EnsureConnected: hub.ensureConnected,
				Invoke:          hub.invoke,
				Notify:          notify,
				Logger:          &log.Logger,
			},
			wantErr: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.cfg.Validate()
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistrySubscribe(t *testing.T) {
	hub := &mockHub{}
	registry, _ := setupRegistry(t, hub)
	ctx := context.Background()

	// Ensure a subscription issues a single remote call and records membership.
	err := registry.Subscribe(ctx, "BTCUSDT", shared.TickerStream)
	assert.NoError(t, err)
	assert.Equal(t, hub.invocations, []string{"SubscribeToTicker:BTCUSDT"})

	tickers, trades := registry.ActiveSubscriptions()
	assert.Equal(t, tickers, []string{"BTCUSDT"})
	assert.Equal(t, len(trades), 0)

	// Ensure a duplicate subscription is a no-op with no second remote call.
	err = registry.Subscribe(ctx, "BTCUSDT", shared.TickerStream)
	assert.NoError(t, err)
	assert.Equal(t, len(hub.invocations), 1)
	assert.Equal(t, hub.connects, 1)

	// Ensure ticker and trade streams for the same symbol are independent.
	err = registry.Subscribe(ctx, "BTCUSDT", shared.TradeStream)
	assert.NoError(t, err)
	assert.Equal(t, hub.invocations[1], "SubscribeToTrades:BTCUSDT")

	tickers, trades = registry.ActiveSubscriptions()
	assert.Equal(t, tickers, []string{"BTCUSDT"})
	assert.Equal(t, trades, []string{"BTCUSDT"})
}

func TestRegistrySubscribeFailure(t *testing.T) {
	hub := &mockHub{
		invokeErrs: map[string]error{
			"SubscribeToTicker:ETHUSDT": fmt.Errorf("write failed"),
		},
	}
	registry, notifications := setupRegistry(t, hub)
	ctx := context.Background()

	// Ensure a failed remote subscribe leaves no membership behind.
	err := registry.Subscribe(ctx, "ETHUSDT", shared.TickerStream)
	assert.Error(t, err)

	tickers, _ := registry.ActiveSubscriptions()
	assert.Equal(t, len(tickers), 0)

	message := <-notifications
	assert.Equal(t, message, "Failed to subscribe to ticker for ETHUSDT")

	// Ensure a failed connection attempt also leaves no membership behind.
	hub.connectErr = fmt.Errorf("hub unreachable")
	err = registry.Subscribe(ctx, "BTCUSDT", shared.TickerStream)
	assert.Error(t, err)

	tickers, _ = registry.ActiveSubscriptions()
	assert.Equal(t, len(tickers), 0)

	message = <-notifications
	assert.Equal(t, message, "Failed to subscribe to ticker for BTCUSDT")
}

func TestRegistrySubscribeWhileReconnecting(t *testing.T) {
	// A subscribe landing mid-reconnect finds the connect call a no-op and the
	// remote invoke rejected as not connected.
	hub := &mockHub{
		invokeErrs: map[string]error{
			"SubscribeToTicker:BTCUSDT": fmt.Errorf("cannot invoke while reconnecting: %w",
				shared.ErrNotConnected),
		},
	}
	registry, notifications := setupRegistry(t, hub)
	ctx := context.Background()

	// Ensure the subscription is recorded rather than dropped, with no
	// failure notification; the remote call is deferred to the replay.
	err := registry.Subscribe(ctx, "BTCUSDT", shared.TickerStream)
	assert.NoError(t, err)
	assert.Equal(t, len(hub.invocations), 0)
	assert.Equal(t, len(notifications), 0)

	tickers, _ := registry.ActiveSubscriptions()
	assert.Equal(t, tickers, []string{"BTCUSDT"})

	// Ensure the replay after the reconnect issues the deferred remote call.
	hub.invokeErrs = nil
	registry.ReplayAll(ctx)
	assert.Equal(t, hub.invocations, []string{"SubscribeToTicker:BTCUSDT"})

	// Ensure the deferred pair stays a duplicate no-op once connected.
	err = registry.Subscribe(ctx, "BTCUSDT", shared.TickerStream)
	assert.NoError(t, err)
	assert.Equal(t, len(hub.invocations), 1)
}

func TestRegistryUnsubscribe(t *testing.T) {
	hub := &mockHub{}
	registry, _ := setupRegistry(t, hub)
	ctx := context.Background()

	err := registry.Subscribe(ctx, "BTCUSDT", shared.TickerStream)
	assert.NoError(t, err)

	// Ensure unsubscribing removes membership and issues the remote call.
	err = registry.Unsubscribe(ctx, "BTCUSDT", shared.TickerStream)
	assert.NoError(t, err)
	assert.Equal(t, hub.invocations[1], "UnsubscribeFromTicker:BTCUSDT")

	tickers, _ := registry.ActiveSubscriptions()
	assert.Equal(t, len(tickers), 0)

	// Ensure unsubscribing an inactive pair is a no-op.
	err = registry.Unsubscribe(ctx, "BTCUSDT", shared.TickerStream)
	assert.NoError(t, err)
	assert.Equal(t, len(hub.invocations), 2)

	// Ensure membership is removed even when the remote call fails.
	err = registry.Subscribe(ctx, "ETHUSDT", shared.TradeStream)
	assert.NoError(t, err)

	hub.invokeErrs = map[string]error{
		"UnsubscribeFromTrades:ETHUSDT": fmt.Errorf("connection closed"),
	}
	err = registry.Unsubscribe(ctx, "ETHUSDT", shared.TradeStream)
	assert.NoError(t, err)

	_, trades := registry.ActiveSubscriptions()
	assert.Equal(t, len(trades), 0)
}

func TestRegistryReplayAll(t *testing.T) {
	hub := &mockHub{}
	registry, notifications := setupRegistry(t, hub)
	ctx := context.Background()

	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	for _, symbol := range symbols {
		err := registry.Subscribe(ctx, symbol, shared.TickerStream)
		assert.NoError(t, err)
	}
	err := registry.Subscribe(ctx, "BTCUSDT", shared.TradeStream)
	assert.NoError(t, err)

	// Ensure a replay re-issues every registered subscription in order, and
	// a failing symbol does not abort the rest.
	hub.invocations = nil
	hub.invokeErrs = map[string]error{
		"SubscribeToTicker:ETHUSDT": fmt.Errorf("write failed"),
	}

	registry.ReplayAll(ctx)

	assert.Equal(t, hub.invocations, []string{
		"SubscribeToTicker:BTCUSDT",
		"SubscribeToTicker:SOLUSDT",
		"SubscribeToTrades:BTCUSDT",
	})

	message := <-notifications
	assert.Equal(t, message, "Failed to resubscribe to ticker for ETHUSDT")

	// Ensure failed replays keep their membership for the next reconnect.
	tickers, _ := registry.ActiveSubscriptions()
	assert.Equal(t, tickers, symbols)
}

func TestOrderedSet(t *testing.T) {
	set := newOrderedSet()

	// Ensure additions preserve insertion order and reject duplicates.
	assert.Equal(t, set.add("a"), true)
	assert.Equal(t, set.add("b"), true)
	assert.Equal(t, set.add("c"), true)
	assert.Equal(t, set.add("b"), false)
	assert.Equal(t, set.list(), []string{"a", "b", "c"})

	// Ensure removals keep the remaining order intact.
	assert.Equal(t, set.remove("b"), true)
	assert.Equal(t, set.remove("b"), false)
	assert.Equal(t, set.list(), []string{"a", "c"})
	assert.Equal(t, set.has("a"), true)
	assert.Equal(t, set.has("b"), false)
}
