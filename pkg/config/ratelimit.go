package config

import "time"

// RateLimitConfig contains rate limiting settings for the public endpoints.
// Refill rates are tokens per second.
type RateLimitConfig struct {
	Enabled bool `env:"RATELIMIT_ENABLED" env-default:"true" yaml:"enabled"`

	// Per-IP limit applied to every public request
	PerIPCapacity   int     `env:"RATELIMIT_PER_IP_CAPACITY" env-default:"100" yaml:"per_ip_capacity"`
	PerIPRefillRate float64 `env:"RATELIMIT_PER_IP_REFILL_RATE" env-default:"1.67" yaml:"per_ip_refill_rate"`

	// Login endpoint limit (brute force protection)
	LoginCapacity   int     `env:"RATELIMIT_LOGIN_CAPACITY" env-default:"10" yaml:"login_capacity"`
	LoginRefillRate float64 `env:"RATELIMIT_LOGIN_REFILL_RATE" env-default:"0.167" yaml:"login_refill_rate"`

	// Register endpoint limit
	RegisterCapacity   int     `env:"RATELIMIT_REGISTER_CAPACITY" env-default:"5" yaml:"register_capacity"`
	RegisterRefillRate float64 `env:"RATELIMIT_REGISTER_REFILL_RATE" env-default:"0.017" yaml:"register_refill_rate"`

	// Buckets idle for this long are dropped
	BucketTTL string `env:"RATELIMIT_BUCKET_TTL" env-default:"PT1H" yaml:"bucket_ttl"`

	IncludeHeaders bool `env:"RATELIMIT_INCLUDE_HEADERS" env-default:"true" yaml:"include_headers"`

	// Peers allowed to set X-Forwarded-For / X-Real-IP. Requests from any
	// other peer are keyed on their connection address.
	TrustedProxies []string `env:"RATELIMIT_TRUSTED_PROXIES" env-separator:"," yaml:"trusted_proxies" env-description:"Comma separated IPs or CIDRs of reverse proxies"`
}

// DefaultRateLimitConfig returns a RateLimitConfig with sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: true,

		// Per-IP: ~100 requests per minute
		PerIPCapacity:   100,
		PerIPRefillRate: 1.67,

		// Login: 10 per minute
		LoginCapacity:   10,
		LoginRefillRate: 0.167,

		// Register: 5 per 5 minutes
		RegisterCapacity:   5,
		RegisterRefillRate: 0.017,

		BucketTTL:      "PT1H",
		IncludeHeaders: true,
	}
}

// TTL returns how long an idle bucket is kept, one hour when unset.
func (c RateLimitConfig) TTL() time.Duration {
	return durationOr(c.BucketTTL, time.Hour)
}

func (c RateLimitConfig) Validate() ValidationErrors {
	if !c.Enabled {
		return nil
	}
	return collect(
		RequirePositive("RATELIMIT_PER_IP_CAPACITY", c.PerIPCapacity),
		RequirePositiveFloat("RATELIMIT_PER_IP_REFILL_RATE", c.PerIPRefillRate),
		RequirePositive("RATELIMIT_LOGIN_CAPACITY", c.LoginCapacity),
		RequirePositiveFloat("RATELIMIT_LOGIN_REFILL_RATE", c.LoginRefillRate),
		RequirePositive("RATELIMIT_REGISTER_CAPACITY", c.RegisterCapacity),
		RequirePositiveFloat("RATELIMIT_REGISTER_REFILL_RATE", c.RegisterRefillRate),
		RequireISODuration("RATELIMIT_BUCKET_TTL", c.BucketTTL),
		RequireCIDRs("RATELIMIT_TRUSTED_PROXIES", c.TrustedProxies),
	)
}
