// Package api exposes a read-only http surface over the feed service:
// connection state, active subscriptions, chart series snapshots and daily
// stats. It never mutates feed state.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minax/marketfeed/shared"
	"github.com/rs/zerolog"
)

const (
	// requestTimeout is the maximum time allowed per request.
	requestTimeout = time.Second * 10
	// requestIDHeader carries the request id on responses.
	requestIDHeader = "X-Request-ID"
	// requestIDKey is the gin context key for the request id.
	requestIDKey = "request_id"
)

// FeedService defines the feed operations served by the api.
type FeedService interface {
	// State returns the current hub connection state.
	State() shared.ConnectionState
	// ActiveSubscriptions returns the active ticker and trade membership sets.
	ActiveSubscriptions() (tickers []string, trades []string)
	// Series returns a read-only snapshot of the chart series for a symbol.
	Series(ctx context.Context, symbol string) (shared.ChartSeries, error)
	// Stats returns the most recent daily stats observed for a symbol.
	Stats(symbol string) (shared.TickerSnapshot, bool)
}

// ServerConfig represents the api server configuration.
type ServerConfig struct {
	// ListenAddr is the address the server listens on.
	ListenAddr string
	// Feed is the feed service backing the api.
	Feed FeedService
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ServerConfig) Validate() error {
	var errs error

	if cfg.ListenAddr == "" {
		errs = errors.Join(errs, fmt.Errorf("listen address cannot be an empty string"))
	}
	if cfg.Feed == nil {
		errs = errors.Join(errs, fmt.Errorf("feed service cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Server serves the read-only feed api.
type Server struct {
	cfg *ServerConfig
}

// NewServer initializes a new api server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating api server config: %w", err)
	}

	return &Server{
		cfg: cfg,
	}, nil
}

// Router configures the api routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(s.cfg.Logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", s.Health)
	router.GET("/api/v1/connection", s.Connection)
	router.GET("/api/v1/subscriptions", s.Subscriptions)
	router.GET("/api/v1/series/:symbol", s.SeriesSnapshot)
	router.GET("/api/v1/stats/:symbol", s.StatsSnapshot)

	return router
}

// Start runs the api server on the configured listen address.
func (s *Server) Start() error {
	server := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: requestTimeout,
	}

	return server.ListenAndServe()
}
