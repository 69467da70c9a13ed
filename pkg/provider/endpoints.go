package provider

import (
	"net/url"
	"strings"
	"time"

	"github.com/tendant/idm-gateway/pkg/config"
)

// Config identifies the provider realm and the confidential client the
// gateway acts as. It is built once at startup and never mutated.
type Config struct {
	Authority      string
	Realm          string
	ClientID       string
	ClientSecret   string
	DefaultRole    string
	RequestTimeout time.Duration
}

// ConfigFrom converts the loaded configuration section.
func ConfigFrom(c config.ProviderConfig) Config {
	return Config{
		Authority:      c.AuthorityURL(),
		Realm:          c.Realm,
		ClientID:       c.ClientID,
		ClientSecret:   c.ClientSecret,
		DefaultRole:    c.DefaultRole,
		RequestTimeout: c.Timeout(),
	}
}

// Endpoint is a provider URL plus the short name used in logs, spans and metrics.
type Endpoint struct {
	Name string
	URL  string
}

// Endpoints derives every provider URL the gateway calls.
type Endpoints struct {
	authority string
	realm     string
}

func NewEndpoints(cfg Config) Endpoints {
	return Endpoints{
		authority: strings.TrimRight(cfg.Authority, "/"),
		realm:     url.PathEscape(cfg.Realm),
	}
}

func (e Endpoints) oidc(suffix string) string {
	return e.authority + "/realms/" + e.realm + "/protocol/openid-connect/" + suffix
}

func (e Endpoints) admin(suffix string) string {
	return e.authority + "/admin/realms/" + e.realm + "/" + suffix
}

// Token is the token endpoint used by every grant.
func (e Endpoints) Token() Endpoint {
	return Endpoint{Name: "token", URL: e.oidc("token")}
}

func (e Endpoints) Revoke() Endpoint {
	return Endpoint{Name: "revoke", URL: e.oidc("revoke")}
}

func (e Endpoints) Introspect() Endpoint {
	return Endpoint{Name: "introspect", URL: e.oidc("token/introspect")}
}

// Users is the admin collection used to create users.
func (e Endpoints) Users() Endpoint {
	return Endpoint{Name: "users", URL: e.admin("users")}
}

func (e Endpoints) User(id string) Endpoint {
	return Endpoint{Name: "user", URL: e.admin("users/" + url.PathEscape(id))}
}

// Role looks up a realm role by name.
func (e Endpoints) Role(name string) Endpoint {
	return Endpoint{Name: "role", URL: e.admin("roles/" + url.PathEscape(name))}
}

// RoleMapping is the realm-level role mapping collection of a user.
func (e Endpoints) RoleMapping(userID string) Endpoint {
	return Endpoint{Name: "role_mapping", URL: e.admin("users/" + url.PathEscape(userID) + "/role-mappings/realm")}
}
