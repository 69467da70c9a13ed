package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"PT15S", 15 * time.Second, false},
		{"PT1H30M", 90 * time.Minute, false},
		{"P1D", 24 * time.Hour, false},
		{"15s", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseISODuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("KEYCLOAK_AUTHORITY", "https://sso.example.com/")
	t.Setenv("KEYCLOAK_REALM", "acme")
	t.Setenv("KEYCLOAK_CLIENT_ID", "gateway")
	t.Setenv("KEYCLOAK_CLIENT_SECRET", "s3cret")
	t.Setenv("REGISTRATION_COMPENSATE", "true")

	var cfg Gateway
	require.NoError(t, Load(&cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://sso.example.com", cfg.Provider.AuthorityURL())
	assert.Equal(t, "acme", cfg.Provider.Realm)
	assert.Equal(t, "user", cfg.Provider.DefaultRole)
	assert.Equal(t, 15*time.Second, cfg.Provider.Timeout())
	assert.False(t, cfg.AdminToken.CacheEnabled)
	assert.Equal(t, 30*time.Second, cfg.AdminToken.Skew())
	assert.True(t, cfg.Registration.Compensate)
	assert.Equal(t, 10*time.Second, cfg.Registration.CleanupTimeout())
	assert.Equal(t, StoreMemory, cfg.Reconciliation.Store)
	assert.Equal(t, "/api/user", cfg.Prefix.User)
	assert.Equal(t, time.Hour, cfg.RateLimit.TTL())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
provider:
  authority: http://keycloak:8080
  realm: demo
  client_id: file-client
  client_secret: file-secret
reconciliation:
  store: redis
  redis_url: redis://localhost:6379/0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("KEYCLOAK_REALM", "from-env")

	var cfg Gateway
	require.NoError(t, Load(&cfg))

	assert.Equal(t, "http://keycloak:8080", cfg.Provider.Authority)
	assert.Equal(t, "from-env", cfg.Provider.Realm)
	assert.Equal(t, "file-client", cfg.Provider.ClientID)
	assert.Equal(t, StoreRedis, cfg.Reconciliation.Store)
	assert.NoError(t, cfg.Validate())
}

func TestGatewayValidate(t *testing.T) {
	cfg := Gateway{
		Provider: ProviderConfig{
			Authority:      "not a url",
			Realm:          "demo",
			DefaultRole:    "user",
			RequestTimeout: "10 seconds",
		},
		Registration:   RegistrationConfig{CompensationTimeout: "PT5S"},
		Reconciliation: ReconciliationConfig{Store: StorePostgres},
		RateLimit:      DefaultRateLimitConfig(),
		Prefix:         DefaultPrefixes(),
	}

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		"KEYCLOAK_AUTHORITY",
		"KEYCLOAK_CLIENT_ID",
		"KEYCLOAK_CLIENT_SECRET",
		"KEYCLOAK_REQUEST_TIMEOUT",
		"RECONCILIATION_POSTGRES_URL",
	}, fields)
}

func TestPrefixValidate(t *testing.T) {
	assert.NoError(t, DefaultPrefixes().Validate())
	assert.Error(t, PrefixConfig{User: "api/user", Metrics: "/metrics"}.Validate())
	assert.Error(t, PrefixConfig{User: "/api/user/", Metrics: "/metrics"}.Validate())
	assert.Error(t, PrefixConfig{User: "/same", Metrics: "/same"}.Validate())
}

func TestLogConfig(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warning"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "verbose"}.SlogLevel())
	assert.True(t, LogConfig{Format: "JSON"}.JSON())
}

func TestTrustedProxies(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("RATELIMIT_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.10")

	var cfg Gateway
	require.NoError(t, Load(&cfg))
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.RateLimit.TrustedProxies)
	assert.Empty(t, cfg.RateLimit.Validate())

	prefixes, err := ParsePrefixes(cfg.RateLimit.TrustedProxies)
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.0.2.10/32", prefixes[1].String())

	rl := DefaultRateLimitConfig()
	rl.TrustedProxies = []string{"proxy.internal"}
	verrs := rl.Validate()
	require.Len(t, verrs, 1)
	assert.Equal(t, "RATELIMIT_TRUSTED_PROXIES", verrs[0].Field)
}
