// Package config defines the configuration sections of idm-gateway.
//
// Every section is a plain struct with cleanenv tags, so the same values can
// come from environment variables or a YAML file:
//
//	var cfg config.Gateway
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Durations are ISO-8601 strings ("PT15S", "PT1H") parsed with ParseISODuration.
// Each section exposes typed accessors (ProviderConfig.Timeout,
// RegistrationConfig.CleanupTimeout, ...) that fall back to the documented
// default when the raw value is empty.
//
// # Sections
//
//   - ProviderConfig: realm authority, client credentials, default role
//   - AdminTokenConfig: optional reuse of the administrative credential
//   - RegistrationConfig: compensation of half-finished registrations
//   - ReconciliationConfig: where users left without a role are recorded
//   - RateLimitConfig: token buckets on the public endpoints
//   - PrefixConfig: route prefixes
//   - TelemetryConfig, LogConfig: tracing export and slog setup
//
// # Validation
//
// Validators return ValidationErrors and are combined with Validate:
//
//	err := config.Validate(cfg.Provider.Validate, cfg.RateLimit.Validate)
//
// The combined error lists every invalid field, one per line.
package config
