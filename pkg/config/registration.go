package config

import "time"

// Reconciliation store kinds
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// RegistrationConfig controls what happens when registration fails after the
// user was created at the provider.
type RegistrationConfig struct {
	// Compensate deletes the created user when role lookup or assignment fails.
	Compensate          bool   `env:"REGISTRATION_COMPENSATE" env-default:"false" yaml:"compensate"`
	CompensationTimeout string `env:"REGISTRATION_COMPENSATION_TIMEOUT" env-default:"PT10S" yaml:"compensation_timeout"`
}

// CleanupTimeout returns the budget for compensating actions, 10s when unset.
func (c RegistrationConfig) CleanupTimeout() time.Duration {
	return durationOr(c.CompensationTimeout, 10*time.Second)
}

func (c RegistrationConfig) Validate() ValidationErrors {
	return collect(RequireISODuration("REGISTRATION_COMPENSATION_TIMEOUT", c.CompensationTimeout))
}

// ReconciliationConfig selects where users left without a role are recorded.
type ReconciliationConfig struct {
	Store       string `env:"RECONCILIATION_STORE" env-default:"memory" yaml:"store" env-description:"memory, postgres or redis"`
	PostgresURL string `env:"RECONCILIATION_POSTGRES_URL" yaml:"postgres_url"`
	RedisURL    string `env:"RECONCILIATION_REDIS_URL" yaml:"redis_url"`
	RedisPrefix string `env:"RECONCILIATION_REDIS_PREFIX" env-default:"idm-gateway:pending" yaml:"redis_prefix"`
}

func (c ReconciliationConfig) Validate() ValidationErrors {
	errs := collect(RequireOneOf("RECONCILIATION_STORE", c.Store, []string{StoreMemory, StorePostgres, StoreRedis}))
	switch c.Store {
	case StorePostgres:
		errs = append(errs, collect(RequireNonEmpty("RECONCILIATION_POSTGRES_URL", c.PostgresURL))...)
	case StoreRedis:
		errs = append(errs, collect(RequireNonEmpty("RECONCILIATION_REDIS_URL", c.RedisURL))...)
	}
	return errs
}
