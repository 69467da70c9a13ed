package config

import (
	"fmt"
	"strings"
)

// PrefixConfig holds configurable API endpoint prefixes.
//
// Example environment variables:
//
//	API_PREFIX_USER=/api/user
//	API_PREFIX_METRICS=/metrics
type PrefixConfig struct {
	// register, login, refresh, logout
	User string `env:"API_PREFIX_USER" env-default:"/api/user" yaml:"user"`
	// prometheus scrape endpoint
	Metrics string `env:"API_PREFIX_METRICS" env-default:"/metrics" yaml:"metrics"`
}

// DefaultPrefixes returns the default prefix configuration.
func DefaultPrefixes() PrefixConfig {
	return PrefixConfig{
		User:    "/api/user",
		Metrics: "/metrics",
	}
}

// Validate checks that every prefix is an absolute path without a trailing slash.
func (p PrefixConfig) Validate() error {
	for name, prefix := range map[string]string{"API_PREFIX_USER": p.User, "API_PREFIX_METRICS": p.Metrics} {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("%s must start with /, got %q", name, prefix)
		}
		if len(prefix) > 1 && strings.HasSuffix(prefix, "/") {
			return fmt.Errorf("%s must not end with /, got %q", name, prefix)
		}
	}
	if p.User == p.Metrics {
		return fmt.Errorf("API_PREFIX_USER and API_PREFIX_METRICS must differ")
	}
	return nil
}
