package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVars() map[string]string {
	return map[string]string{
		"FLOWBUS_URL":    "nats://localhost:4222",
		"COMMANDBUS_URL": "nats://localhost:4222",
	}
}

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := FromMap(validVars())
	require.NoError(t, err)

	assert.Equal(t, "planning", cfg.Application)
	assert.Equal(t, StoreSQLite, cfg.EventStoreType)
	assert.Equal(t, "flows.db", cfg.EventStoreURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, FormatText, cfg.LogFormat)
	assert.Empty(t, cfg.MetricsAddr)
	assert.NoError(t, cfg.Validate())
}

func TestFromMap_Overrides(t *testing.T) {
	vars := validVars()
	vars["APPLICATION"] = "travel"
	vars["EVENTSTORE_TYPE"] = "postgres"
	vars["EVENTSTORE_URL"] = "postgres://flows@localhost/flows"
	vars["WRITEMODEL_PATH"] = "writemodel.cue"
	vars["LOG_LEVEL"] = "debug"
	vars["LOG_FORMAT"] = "json"
	vars["METRICS_ADDR"] = ":9090"

	cfg, err := FromMap(vars)
	require.NoError(t, err)

	assert.Equal(t, "travel", cfg.Application)
	assert.Equal(t, StorePostgres, cfg.EventStoreType)
	assert.Equal(t, "postgres://flows@localhost/flows", cfg.EventStoreURL)
	assert.Equal(t, "writemodel.cue", cfg.WriteModelPath)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, FormatJSON, cfg.LogFormat)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown store", func(c *Config) { c.EventStoreType = "mongodb" }, "EVENTSTORE_TYPE"},
		{"missing store url", func(c *Config) { c.EventStoreURL = "" }, "EVENTSTORE_URL"},
		{"missing flow bus", func(c *Config) { c.FlowBusURL = "" }, "FLOWBUS_URL"},
		{"missing command bus", func(c *Config) { c.CommandBusURL = "" }, "COMMANDBUS_URL"},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"unknown format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"missing application", func(c *Config) { c.Application = "" }, "APPLICATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromMap(validVars())
			require.NoError(t, err)
			tt.mutate(&cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg, err := FromMap(map[string]string{"EVENTSTORE_TYPE": "mongodb"})
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENTSTORE_TYPE")
	assert.Contains(t, err.Error(), "FLOWBUS_URL")
	assert.Contains(t, err.Error(), "COMMANDBUS_URL")
}

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "info"}.Level())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "WARN"}.Level())
	assert.Equal(t, slog.LevelError, Config{LogLevel: "error"}.Level())
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "bogus"}.Level())
}
