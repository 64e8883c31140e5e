// Package sub tracks the set of market data streams the feed is subscribed
// to. The registry's membership sets are the single source of truth for what
// should be subscribed on the hub; the transport side is replayed from them
// after every reconnect.
package sub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/minax/marketfeed/shared"
	"github.com/rs/zerolog"
)

// RegistryConfig represents the subscription registry configuration.
type RegistryConfig struct {
	// EnsureConnected establishes the hub connection if it is not already up.
	EnsureConnected func(ctx context.Context) error
	// Invoke issues a named remote call for a symbol on the hub connection.
	Invoke func(method string, symbol string) error
	// Notify relays human readable error notifications.
	Notify func(message string)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *RegistryConfig) Validate() error {
	var errs error

	if cfg.EnsureConnected == nil {
		errs = errors.Join(errs, fmt.Errorf("ensure connected function cannot be nil"))
	}
	if cfg.Invoke == nil {
		errs = errors.Join(errs, fmt.Errorf("invoke function cannot be nil"))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("notify function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Registry tracks active ticker and trade stream subscriptions.
type Registry struct {
	cfg     *RegistryConfig
	mtx     sync.RWMutex
	tickers *orderedSet
	trades  *orderedSet
}

// NewRegistry initializes a new subscription registry.
func NewRegistry(cfg *RegistryConfig) (*Registry, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating subscription registry config: %w", err)
	}

	return &Registry{
		cfg:     cfg,
		tickers: newOrderedSet(),
		trades:  newOrderedSet(),
	}, nil
}

// set returns the membership set for the provided stream kind.
func (r *Registry) set(kind shared.StreamKind) *orderedSet {
	if kind == shared.TradeStream {
		return r.trades
	}

	return r.tickers
}

// subscribeMethod returns the remote subscribe invocation for the provided kind.
func subscribeMethod(kind shared.StreamKind) string {
	if kind == shared.TradeStream {
		return shared.SubscribeToTrades
	}

	return shared.SubscribeToTicker
}

// unsubscribeMethod returns the remote unsubscribe invocation for the provided kind.
func unsubscribeMethod(kind shared.StreamKind) string {
	if kind == shared.TradeStream {
		return shared.UnsubscribeFromTrades
	}

	return shared.UnsubscribeFromTicker
}

// Subscribe registers the provided symbol for the provided stream kind and
// issues the remote subscribe call. It is a no-op when the pair is already
// active, which guarantees at most one outstanding remote subscribe per pair.
// A subscribe landing while the connection is still being established records
// membership and defers the remote call to the reconnect replay; membership
// is rolled back only when the hub rejects the call outright.
func (r *Registry) Subscribe(ctx context.Context, symbol string, kind shared.StreamKind) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	set := r.set(kind)
	if set.has(symbol) {
		return nil
	}

	err := r.cfg.EnsureConnected(ctx)
	if err != nil {
		r.cfg.Notify(fmt.Sprintf("Failed to subscribe to %s for %s", kind, symbol))
		return fmt.Errorf("ensuring hub connection for %s %s subscription: %w", symbol, kind, err)
	}

	set.add(symbol)

	err = r.cfg.Invoke(subscribeMethod(kind), symbol)
	switch {
	case errors.Is(err, shared.ErrNotConnected):
		r.cfg.Logger.Info().Msgf("connection not ready, %s subscription for %s deferred to replay", kind, symbol)
		return nil
	case err != nil:
		set.remove(symbol)
		r.cfg.Notify(fmt.Sprintf("Failed to subscribe to %s for %s", kind, symbol))
		return fmt.Errorf("subscribing to %s for %s: %w", kind, symbol, err)
	}

	r.cfg.Logger.Info().Msgf("subscribed to %s stream for %s", kind, symbol)

	return nil
}

// Unsubscribe removes the provided symbol from the provided stream kind.
// Local membership is updated first so the removal is effective immediately
// and a later reconnect does not resubscribe the symbol; the remote call is
// best effort.
func (r *Registry) Unsubscribe(ctx context.Context, symbol string, kind shared.StreamKind) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	set := r.set(kind)
	if !set.remove(symbol) {
		return nil
	}

	err := r.cfg.Invoke(unsubscribeMethod(kind), symbol)
	if err != nil {
		r.cfg.Logger.Warn().Msgf("best-effort unsubscribe from %s for %s failed: %v", kind, symbol, err)
		return nil
	}

	r.cfg.Logger.Info().Msgf("unsubscribed from %s stream for %s", kind, symbol)

	return nil
}

// ActiveSubscriptions returns copies of the active ticker and trade
// membership sets in registry order.
func (r *Registry) ActiveSubscriptions() (tickers []string, trades []string) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	return r.tickers.list(), r.trades.list()
}

// ReplayAll re-issues subscribe calls for every registered entry in registry
// order. Individual failures are reported and skipped so one symbol cannot
// abort the replay of the rest.
func (r *Registry) ReplayAll(ctx context.Context) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, symbol := range r.tickers.list() {
		err := r.cfg.Invoke(subscribeMethod(shared.TickerStream), symbol)
		if err != nil {
			r.cfg.Logger.Error().Msgf("replaying ticker subscription for %s: %v", symbol, err)
			r.cfg.Notify(fmt.Sprintf("Failed to resubscribe to ticker for %s", symbol))
		}
	}

	for _, symbol := range r.trades.list() {
		err := r.cfg.Invoke(subscribeMethod(shared.TradeStream), symbol)
		if err != nil {
			r.cfg.Logger.Error().Msgf("replaying trade subscription for %s: %v", symbol, err)
			r.cfg.Notify(fmt.Sprintf("Failed to resubscribe to trade for %s", symbol))
		}
	}
}

// orderedSet is a string set that preserves insertion order for replay.
type orderedSet struct {
	members map[string]struct{}
	order   []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{
		members: make(map[string]struct{}),
	}
}

func (s *orderedSet) has(member string) bool {
	_, ok := s.members[member]
	return ok
}

func (s *orderedSet) add(member string) bool {
	if s.has(member) {
		return false
	}

	s.members[member] = struct{}{}
	s.order = append(s.order, member)

	return true
}

func (s *orderedSet) remove(member string) bool {
	if !s.has(member) {
		return false
	}

	delete(s.members, member)
	for idx := range s.order {
		if s.order[idx] == member {
			s.order = append(s.order[:idx], s.order[idx+1:]...)
			break
		}
	}

	return true
}

func (s *orderedSet) list() []string {
	list := make([]string, len(s.order))
	copy(list, s.order)
	return list
}
