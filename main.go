package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"

	"github.com/minax/marketfeed/api"
	"github.com/minax/marketfeed/fetch"
	"github.com/minax/marketfeed/service"
	"github.com/minax/marketfeed/shared"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	logger := log.With().Str("service", "marketfeed").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher, err := fetch.NewClient(&fetch.ClientConfig{
		BaseURL: cfg.RestURL,
	})
	if err != nil {
		logger.Error().Err(err).Msg("creating fetch client")
		return
	}

	timeframe, err := shared.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		logger.Error().Err(err).Msg("parsing timeframe")
		return
	}

	feedCfg := service.FeedConfig{
		HubURL:       cfg.HubURL,
		Fetcher:      fetcher,
		Timeframe:    timeframe,
		Capacity:     cfg.Capacity,
		JobScheduler: gocron.NewScheduler(time.UTC),
		Logger:       &logger,
	}
	feed, err := service.NewFeed(&feedCfg)
	if err != nil {
		logger.Error().Err(err).Msg("creating feed service")
		return
	}

	apiCfg := api.ServerConfig{
		ListenAddr: cfg.APIListenAddr,
		Feed:       feed,
		Logger:     &logger,
	}
	server, err := api.NewServer(&apiCfg)
	if err != nil {
		logger.Error().Err(err).Msg("creating api server")
		return
	}

	go func() {
		err := server.Start()
		if err != nil {
			logger.Error().Err(err).Msg("running api server")
			cancel()
		}
	}()

	if cfg.Symbol != "" {
		go func() {
			err := feed.WatchSymbol(ctx, cfg.Symbol)
			if err != nil {
				logger.Error().Err(err).Msg("watching symbol")
			}
		}()
	}

	go handleTermination(ctx, cancel)
	feed.Run(ctx)
}
