package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/idm-gateway/pkg/config"
	"github.com/tendant/idm-gateway/pkg/metrics"
)

func newTestMiddleware(t *testing.T, cfg config.RateLimitConfig) (*Middleware, *metrics.Metrics, http.Handler) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	mw := NewMiddleware(ConfigFrom(cfg, "/api/user/login", "/api/user/register"), m)
	t.Cleanup(mw.Stop)
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	return mw, m, h
}

func post(h http.Handler, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareLoginLimit(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.LoginCapacity = 2
	_, m, h := newTestMiddleware(t, cfg)

	for i := 0; i < 2; i++ {
		rec := post(h, "/api/user/login", "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := post(h, "/api/user/login", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	assert.Equal(t, "endpoint", body["details"].(map[string]interface{})["scope"])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimited.WithLabelValues("endpoint")))

	// another client and another endpoint are unaffected
	assert.Equal(t, http.StatusOK, post(h, "/api/user/login", "10.0.0.2").Code)
	assert.Equal(t, http.StatusOK, post(h, "/api/user/register", "10.0.0.1").Code)
}

func TestMiddlewarePerIPLimit(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.PerIPCapacity = 1
	_, _, h := newTestMiddleware(t, cfg)

	assert.Equal(t, http.StatusOK, post(h, "/api/user/other", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(h, "/api/user/other", "10.0.0.1").Code)
}

func TestMiddlewareActiveBucketsGauge(t *testing.T) {
	mw, _, h := newTestMiddleware(t, config.DefaultRateLimitConfig())

	post(h, "/api/user/register", "10.0.0.1")
	post(h, "/api/user/register", "10.0.0.2")
	post(h, "/api/user/login", "10.0.0.1")

	assert.Len(t, mw.GetStats(), 3)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(mw))
	expected := `
# HELP idm_gateway_ratelimit_active_buckets Client buckets currently held by each rate limiter
# TYPE idm_gateway_ratelimit_active_buckets gauge
idm_gateway_ratelimit_active_buckets{limiter="endpoint:POST /api/user/login"} 1
idm_gateway_ratelimit_active_buckets{limiter="endpoint:POST /api/user/register"} 2
idm_gateway_ratelimit_active_buckets{limiter="ip"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "idm_gateway_ratelimit_active_buckets"))
}

func TestMiddlewareIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.LoginCapacity = 2
	_, _, h := newTestMiddleware(t, cfg)

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/user/login", nil)
		req.RemoteAddr = "203.0.113.9:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestMiddlewareHonoursForwardedForFromTrustedProxy(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.LoginCapacity = 1
	cfg.TrustedProxies = []string{"10.0.0.0/8"}
	_, _, h := newTestMiddleware(t, cfg)

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/user/login", nil)
		req.RemoteAddr = "10.0.0.5:40000"
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	// distinct clients behind the same proxy get their own bucket
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
}

func TestClientIP(t *testing.T) {
	proxies, err := config.ParsePrefixes([]string{"10.0.0.0/8", "2001:db8:ffff::/48"})
	require.NoError(t, err)
	mw := NewMiddleware(&Config{TrustedProxies: proxies}, nil)
	t.Cleanup(mw.Stop)

	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"untrusted peer ignores forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.1:1234", "192.0.2.1"},
		{"untrusted peer ignores real ip", map[string]string{"X-Real-IP": "203.0.113.8"}, "192.0.2.1:1234", "192.0.2.1"},
		{"trusted proxy forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.1:1234", "203.0.113.7"},
		{"spoofed left-most entry is skipped", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.7, 10.0.0.2"}, "10.0.0.1:1234", "203.0.113.7"},
		{"malformed hop stops the walk", map[string]string{"X-Forwarded-For": "203.0.113.7, junk, 10.0.0.2"}, "10.0.0.1:1234", "10.0.0.2"},
		{"trusted proxy real ip", map[string]string{"X-Real-IP": "203.0.113.8"}, "10.0.0.1:1234", "203.0.113.8"},
		{"trusted proxy without headers", nil, "10.0.0.1:1234", "10.0.0.1"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:5555", "2001:db8::1"},
		{"ipv6 trusted proxy", map[string]string{"X-Forwarded-For": "2001:db8::7"}, "[2001:db8:ffff::1]:5555", "2001:db8::7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, mw.clientIP(req))
		})
	}
}
