// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Event store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	storeTypes = []string{StoreSQLite, StorePostgres}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{FormatText, FormatJSON}
)

// Config is the runtime configuration of the flows service.
type Config struct {
	Application    string `env:"APPLICATION"     envDefault:"planning"`
	EventStoreType string `env:"EVENTSTORE_TYPE" envDefault:"sqlite"`
	EventStoreURL  string `env:"EVENTSTORE_URL"  envDefault:"flows.db"`
	FlowBusURL     string `env:"FLOWBUS_URL"`
	CommandBusURL  string `env:"COMMANDBUS_URL"`
	WriteModelPath string `env:"WRITEMODEL_PATH"`
	LogLevel       string `env:"LOG_LEVEL"       envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT"      envDefault:"text"`
	MetricsAddr    string `env:"METRICS_ADDR"`
}

// FromEnv parses the process environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// FromMap parses vars instead of the process environment.
func FromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Application == "" {
		errs = append(errs, errors.New("APPLICATION is required"))
	}
	if !slices.Contains(storeTypes, c.EventStoreType) {
		errs = append(errs, fmt.Errorf("EVENTSTORE_TYPE %q must be one of %v", c.EventStoreType, storeTypes))
	}
	if c.EventStoreURL == "" {
		errs = append(errs, errors.New("EVENTSTORE_URL is required"))
	}
	if c.FlowBusURL == "" {
		errs = append(errs, errors.New("FLOWBUS_URL is required"))
	}
	if c.CommandBusURL == "" {
		errs = append(errs, errors.New("COMMANDBUS_URL is required"))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q must be one of %v", c.LogLevel, logLevels))
	}
	if !slices.Contains(logFormats, c.LogFormat) {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be one of %v", c.LogFormat, logFormats))
	}

	return errors.Join(errs...)
}

// Level maps LogLevel to a slog level. Unknown levels map to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
