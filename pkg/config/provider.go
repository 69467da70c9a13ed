package config

import (
	"strings"
	"time"
)

// ProviderConfig identifies the OAuth2/OIDC realm the gateway fronts and the
// confidential client it acts as.
type ProviderConfig struct {
	Authority      string `env:"KEYCLOAK_AUTHORITY" env-default:"http://localhost:8180" yaml:"authority" env-description:"Base URL of the identity provider"`
	Realm          string `env:"KEYCLOAK_REALM" env-default:"master" yaml:"realm"`
	ClientID       string `env:"KEYCLOAK_CLIENT_ID" yaml:"client_id"`
	ClientSecret   string `env:"KEYCLOAK_CLIENT_SECRET" yaml:"client_secret"`
	DefaultRole    string `env:"KEYCLOAK_DEFAULT_ROLE" env-default:"user" yaml:"default_role" env-description:"Realm role assigned to newly registered users"`
	RequestTimeout string `env:"KEYCLOAK_REQUEST_TIMEOUT" env-default:"PT15S" yaml:"request_timeout" env-description:"ISO-8601 timeout of a single provider request"`
}

// AuthorityURL returns the authority without a trailing slash.
func (c ProviderConfig) AuthorityURL() string {
	return strings.TrimRight(c.Authority, "/")
}

// Timeout returns the per-request timeout, 15s when unset.
func (c ProviderConfig) Timeout() time.Duration {
	return durationOr(c.RequestTimeout, 15*time.Second)
}

// Validate checks that every provider setting needed for a grant is present.
func (c ProviderConfig) Validate() ValidationErrors {
	return collect(
		RequireValidURL("KEYCLOAK_AUTHORITY", c.Authority),
		RequireNonEmpty("KEYCLOAK_REALM", c.Realm),
		RequireNonEmpty("KEYCLOAK_CLIENT_ID", c.ClientID),
		RequireNonEmpty("KEYCLOAK_CLIENT_SECRET", c.ClientSecret),
		RequireNonEmpty("KEYCLOAK_DEFAULT_ROLE", c.DefaultRole),
		RequireISODuration("KEYCLOAK_REQUEST_TIMEOUT", c.RequestTimeout),
	)
}

// AdminTokenConfig controls reuse of the gateway's administrative credential.
// Reuse is off unless explicitly enabled; each registration then acquires a
// fresh credential.
type AdminTokenConfig struct {
	CacheEnabled bool   `env:"ADMIN_TOKEN_CACHE_ENABLED" env-default:"false" yaml:"cache_enabled"`
	RefreshSkew  string `env:"ADMIN_TOKEN_REFRESH_SKEW" env-default:"PT30S" yaml:"refresh_skew" env-description:"Credential is reacquired this long before it expires"`
}

// Skew returns the refresh skew, 30s when unset.
func (c AdminTokenConfig) Skew() time.Duration {
	return durationOr(c.RefreshSkew, 30*time.Second)
}

func (c AdminTokenConfig) Validate() ValidationErrors {
	if !c.CacheEnabled {
		return nil
	}
	return collect(RequireISODuration("ADMIN_TOKEN_REFRESH_SKEW", c.RefreshSkew))
}
