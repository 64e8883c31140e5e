package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/minax/marketfeed/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// backoffBase is the initial reconnection delay.
	backoffBase = time.Second
	// backoffCap is the maximum reconnection delay.
	backoffCap = time.Second * 30
)

// Conn represents an established hub connection.
type Conn interface {
	// ReadMessage reads the next inbound frame.
	ReadMessage() ([]byte, error)
	// WriteJSON writes the provided value as a json frame.
	WriteJSON(v interface{}) error
	// Close terminates the connection.
	Close() error
}

// Dialer establishes hub connections.
type Dialer interface {
	// Dial connects to the hub at the provided url.
	Dial(ctx context.Context, url string) (Conn, error)
}

// invocation is the outbound frame for a named remote call.
type invocation struct {
	Method string `json:"method"`
	Symbol string `json:"symbol"`
}

// ManagerConfig represents the connection manager configuration.
type ManagerConfig struct {
	// URL is the websocket url of the market data hub.
	URL string
	// Dialer establishes hub connections.
	Dialer Dialer
	// RelayTick relays an inbound ticker update for distribution.
	RelayTick func(tick shared.Tick)
	// RelayTrade relays an inbound trade update for distribution.
	RelayTrade func(trade shared.Trade)
	// ReplaySubscriptions re-issues all registered subscriptions after a reconnect.
	ReplaySubscriptions func(ctx context.Context)
	// SignalConnectionState relays connection state transitions.
	SignalConnectionState func(state shared.ConnectionState)
	// Notify relays human readable error notifications.
	Notify func(message string)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.URL == "" {
		errs = errors.Join(errs, fmt.Errorf("hub url cannot be an empty string"))
	}
	if cfg.Dialer == nil {
		errs = errors.Join(errs, fmt.Errorf("dialer cannot be nil"))
	}
	if cfg.RelayTick == nil {
		errs = errors.Join(errs, fmt.Errorf("relay tick function cannot be nil"))
	}
	if cfg.RelayTrade == nil {
		errs = errors.Join(errs, fmt.Errorf("relay trade function cannot be nil"))
	}
	if cfg.ReplaySubscriptions == nil {
		errs = errors.Join(errs, fmt.Errorf("replay subscriptions function cannot be nil"))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("notify function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager owns the single logical hub connection and its lifecycle.
type Manager struct {
	cfg     *ManagerConfig
	state   atomic.Int32
	attempt atomic.Uint32
	connMtx sync.Mutex
	conn    Conn
	stopped bool
}

// NewManager initializes a new connection manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating connection manager config: %w", err)
	}

	return &Manager{
		cfg: cfg,
	}, nil
}

// State returns the current connection state.
func (m *Manager) State() shared.ConnectionState {
	return shared.ConnectionState(m.state.Load())
}

// transition moves the connection state machine to the provided state.
func (m *Manager) transition(to shared.ConnectionState) {
	from := shared.ConnectionState(m.state.Swap(int32(to)))
	m.announce(from, to)
}

// transitionFrom moves the state machine to the provided state only when the
// current state matches one of the expected states, and reports whether the
// move happened. Concurrent callers race on the swap, so exactly one wins.
func (m *Manager) transitionFrom(to shared.ConnectionState, from ...shared.ConnectionState) bool {
	for _, state := range from {
		if m.state.CompareAndSwap(int32(state), int32(to)) {
			m.announce(state, to)
			return true
		}
	}

	return false
}

// announce logs and signals a state change.
func (m *Manager) announce(from, to shared.ConnectionState) {
	if from == to {
		return
	}

	m.cfg.Logger.Info().Msgf("hub connection %s -> %s", from, to)
	if m.cfg.SignalConnectionState != nil {
		m.cfg.SignalConnectionState(to)
	}
}

// Connect establishes the hub connection. It is a no-op if a connection is
// already established or being established. Handshake failures are returned
// synchronously to the caller.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.transitionFrom(shared.Connecting, shared.Disconnected, shared.Errored) {
		return nil
	}

	conn, err := m.cfg.Dialer.Dial(ctx, m.cfg.URL)
	if err != nil {
		m.transition(shared.Errored)
		m.cfg.Notify(fmt.Sprintf("Failed to connect to market data hub: %v", err))
		return fmt.Errorf("dialing market data hub: %w", err)
	}

	m.connMtx.Lock()
	m.conn = conn
	m.stopped = false
	m.connMtx.Unlock()

	m.attempt.Store(0)
	m.transition(shared.Connected)

	go m.readLoop(ctx, conn)

	return nil
}

// Disconnect terminates the hub connection and suppresses reconnection.
func (m *Manager) Disconnect() error {
	m.connMtx.Lock()
	m.stopped = true
	conn := m.conn
	m.conn = nil
	m.connMtx.Unlock()

	m.transition(shared.Disconnected)

	if conn != nil {
		err := conn.Close()
		if err != nil {
			return fmt.Errorf("closing hub connection: %w", err)
		}
	}

	return nil
}

// Invoke issues the provided named remote call for a symbol. The connection
// must be established.
func (m *Manager) Invoke(method string, symbol string) error {
	m.connMtx.Lock()
	conn := m.conn
	m.connMtx.Unlock()

	if state := m.State(); state != shared.Connected || conn == nil {
		return fmt.Errorf("cannot invoke %s for %s while %s: %w",
			method, symbol, state, shared.ErrNotConnected)
	}

	err := conn.WriteJSON(invocation{Method: method, Symbol: symbol})
	if err != nil {
		return fmt.Errorf("invoking %s for %s: %w", method, symbol, err)
	}

	return nil
}

// readLoop drains inbound frames until the connection closes. Unexpected
// closes trigger the reconnection process.
func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			m.connMtx.Lock()
			stopped := m.stopped
			m.connMtx.Unlock()

			if stopped || ctx.Err() != nil {
				return
			}

			m.cfg.Logger.Error().Msgf("hub connection closed unexpectedly: %v", err)
			_ = conn.Close()
			go m.reconnect(ctx)
			return
		}

		m.handleMessage(msg)
	}
}

// reconnect retries the hub connection with exponential backoff until it
// succeeds, the manager is stopped or the context is cancelled. The backoff
// wait is a plain timer and holds no locks.
func (m *Manager) reconnect(ctx context.Context) {
	m.transition(shared.Reconnecting)

	for {
		attempt := m.attempt.Load()
		m.attempt.Inc()
		delay := backoffDelay(attempt)
		m.cfg.Logger.Info().Msgf("reconnecting to hub in %s (attempt %d)", delay, attempt+1)

		select {
		case <-ctx.Done():
			m.transition(shared.Disconnected)
			return
		case <-time.After(delay):
		}

		m.connMtx.Lock()
		stopped := m.stopped
		m.connMtx.Unlock()
		if stopped {
			return
		}

		conn, err := m.cfg.Dialer.Dial(ctx, m.cfg.URL)
		if err != nil {
			m.cfg.Logger.Error().Msgf("reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		// A disconnect may have landed while the dial was in flight; the fresh
		// connection must not outlive it.
		m.connMtx.Lock()
		if m.stopped {
			m.connMtx.Unlock()
			_ = conn.Close()
			return
		}
		m.conn = conn
		m.connMtx.Unlock()

		m.attempt.Store(0)

		go m.readLoop(ctx, conn)
		m.transition(shared.Connected)

		// Replay registered subscriptions immediately so resubscribed symbols
		// do not silently drop ticks. The registry serializes membership
		// mutations, which blocks new subscribe calls until the replay is done.
		m.cfg.ReplaySubscriptions(ctx)
		return
	}
}

// backoffDelay returns the reconnection delay for the provided attempt,
// doubling from the base up to the cap.
func backoffDelay(attempt uint32) time.Duration {
	const maxShift = 16
	if attempt > maxShift {
		return backoffCap
	}

	delay := backoffBase << attempt
	if delay > backoffCap {
		delay = backoffCap
	}

	return delay
}
