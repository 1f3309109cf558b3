package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mwheeler/chartsync/shared"
)

// Config is the configuration struct for the service.
type Config struct {
	// BaseURL is the dashboard backend base url.
	BaseURL string
	// APIKey is the dashboard backend API key.
	APIKey string
	// StreamURL is the push feed websocket url.
	StreamURL string
	// Symbols is the fixed default symbol list loaded before discovery.
	Symbols []string
	// Timeframe is the initially selected chart timeframe.
	Timeframe string
	// DatabaseEndpoint is the candle archive endpoint, archiving is
	// disabled when empty.
	DatabaseEndpoint string
	// DatabaseUser is the candle archive user.
	DatabaseUser string
	// DatabasePass is the candle archive user pass.
	DatabasePass string

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("base url cannot be an empty string"))
	}
	if cfg.StreamURL == "" {
		errs = errors.Join(errs, fmt.Errorf("stream url cannot be an empty string"))
	}
	if cfg.Timeframe != "" {
		_, err := shared.ParseTimeframe(cfg.Timeframe)
		if err != nil {
			errs = errors.Join(errs, err)
		}
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
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
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
	err = cfg.registerFlag("baseurl", &cfg.BaseURL, "the dashboard backend base url")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("apikey", &cfg.APIKey, "the dashboard backend api key")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("streamurl", &cfg.StreamURL, "the push feed websocket url")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("symbols", &cfg.Symbols, "the default tracked symbols")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("timeframe", &cfg.Timeframe, "the initially selected timeframe")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("databaseendpoint", &cfg.DatabaseEndpoint, "the candle archive endpoint")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("databaseuser", &cfg.DatabaseUser, "the candle archive user")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("databasepass", &cfg.DatabasePass, "the candle archive user pass")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
