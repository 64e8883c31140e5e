package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/minax/marketfeed/shared"
)

// Config is the configuration struct for the service.
type Config struct {
	// HubURL is the websocket url of the market data hub.
	HubURL string
	// RestURL is the base url of the hub's rest api.
	RestURL string
	// Symbol is the initially watched market symbol.
	Symbol string
	// Timeframe is the initial chart aggregation timeframe.
	Timeframe string
	// APIListenAddr is the listen address for the read-only api.
	APIListenAddr string
	// Capacity is the maximum number of entries retained per chart series.
	Capacity int

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.HubURL == "" {
		errs = errors.Join(errs, fmt.Errorf("hub url cannot be an empty string"))
	}
	if cfg.RestURL == "" {
		errs = errors.Join(errs, fmt.Errorf("rest url cannot be an empty string"))
	}
	if cfg.Timeframe != "" {
		_, err := shared.ParseTimeframe(cfg.Timeframe)
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if cfg.Capacity < 0 {
		errs = errors.Join(errs, fmt.Errorf("series capacity cannot be negative"))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	err = cfg.registerFlag("huburl", &cfg.HubURL, "the market data hub websocket url")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("resturl", &cfg.RestURL, "the market data hub rest api url")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("symbol", &cfg.Symbol, "the initially watched symbol")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("timeframe", &cfg.Timeframe, "the initial chart timeframe")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("apilisten", &cfg.APIListenAddr, "the read-only api listen address")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("capacity", &cfg.Capacity, "the maximum entries retained per chart series")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	if cfg.Timeframe == "" {
		cfg.Timeframe = "1m"
	}
	if cfg.APIListenAddr == "" {
		cfg.APIListenAddr = ":8080"
	}

	return cfg.Validate()
}
