package config

import (
	"log/slog"
	"strings"
)

// LogConfig configures the process-wide slog handler.
type LogConfig struct {
	Level     string `env:"LOG_LEVEL" env-default:"info" yaml:"level"`
	Format    string `env:"LOG_FORMAT" env-default:"text" yaml:"format" env-description:"text or json"`
	AddSource bool   `env:"LOG_ADD_SOURCE" env-default:"true" yaml:"add_source"`
	Audit     bool   `env:"LOG_AUDIT" env-default:"true" yaml:"audit" env-description:"Log one audit record per gateway request"`
}

// SlogLevel maps Level to a slog.Level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// JSON reports whether logs should be written as JSON.
func (c LogConfig) JSON() bool {
	return strings.EqualFold(c.Format, "json")
}

// TelemetryConfig configures OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" env-default:"false" yaml:"enabled"`
	Endpoint    string `env:"OTEL_ENDPOINT" yaml:"endpoint" env-description:"OTLP/HTTP collector URL"`
	ServiceName string `env:"OTEL_SERVICE_NAME" env-default:"idm-gateway" yaml:"service_name"`
}

func (c TelemetryConfig) Validate() ValidationErrors {
	if !c.Enabled {
		return nil
	}
	return collect(RequireValidURL("OTEL_ENDPOINT", c.Endpoint))
}
