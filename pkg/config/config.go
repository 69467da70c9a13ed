package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Gateway groups every setting the gateway and the reconcile command read.
type Gateway struct {
	Provider       ProviderConfig       `yaml:"provider"`
	AdminToken     AdminTokenConfig     `yaml:"admin_token"`
	Registration   RegistrationConfig   `yaml:"registration"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Prefix         PrefixConfig         `yaml:"prefix"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Log            LogConfig            `yaml:"log"`
}

// Validate runs every section validator.
func (g Gateway) Validate() error {
	if err := Validate(
		g.Provider.Validate,
		g.AdminToken.Validate,
		g.Registration.Validate,
		g.Reconciliation.Validate,
		g.RateLimit.Validate,
		g.Telemetry.Validate,
	); err != nil {
		return err
	}
	return g.Prefix.Validate()
}

// Load reads cfg from the YAML file named by CONFIG_PATH when set, with
// environment variables taking precedence, or from the environment alone.
// cfg must be a pointer to a struct with cleanenv tags.
func Load(cfg interface{}) error {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("read config from environment: %w", err)
	}
	return nil
}

// Usage returns the description of every supported environment variable.
func Usage(cfg interface{}) string {
	desc, err := cleanenv.GetDescription(cfg, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}
