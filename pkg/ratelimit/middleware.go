package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/idm-gateway/pkg/config"
	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/metrics"
)

// EndpointLimit defines the bucket for one endpoint
type EndpointLimit struct {
	Capacity   int
	RefillRate float64
}

// Config holds rate limiting configuration
type Config struct {
	PerIP EndpointLimit

	// Keyed by "METHOD /full/path"; counted per client IP
	EndpointLimits map[string]EndpointLimit

	BucketTTL      time.Duration
	IncludeHeaders bool

	// Forwarding headers are read only from these peers
	TrustedProxies []netip.Prefix
}

// ConfigFrom builds a Config from the loaded settings. loginPath and
// registerPath are the full routed paths.
func ConfigFrom(c config.RateLimitConfig, loginPath, registerPath string) *Config {
	proxies, err := config.ParsePrefixes(c.TrustedProxies)
	if err != nil {
		slog.Warn("Ignoring trusted proxies", "error", err)
		proxies = nil
	}
	return &Config{
		PerIP: EndpointLimit{Capacity: c.PerIPCapacity, RefillRate: c.PerIPRefillRate},
		EndpointLimits: map[string]EndpointLimit{
			http.MethodPost + " " + loginPath:    {Capacity: c.LoginCapacity, RefillRate: c.LoginRefillRate},
			http.MethodPost + " " + registerPath: {Capacity: c.RegisterCapacity, RefillRate: c.RegisterRefillRate},
		},
		BucketTTL:      c.TTL(),
		IncludeHeaders: c.IncludeHeaders,
		TrustedProxies: proxies,
	}
}

// Middleware holds the rate limiting middleware state
type Middleware struct {
	config           *Config
	ipLimiter        *RateLimiter
	endpointLimiters map[string]*RateLimiter
	metrics          *metrics.Metrics
	bucketsDesc      *prometheus.Desc
}

// NewMiddleware creates the limiters described by cfg. m may be nil.
func NewMiddleware(cfg *Config, m *metrics.Metrics) *Middleware {
	mw := &Middleware{
		config:           cfg,
		endpointLimiters: make(map[string]*RateLimiter),
		metrics:          m,
		bucketsDesc: prometheus.NewDesc(
			"idm_gateway_ratelimit_active_buckets",
			"Client buckets currently held by each rate limiter",
			[]string{"limiter"}, nil,
		),
	}
	if cfg.PerIP.Capacity > 0 {
		mw.ipLimiter = NewRateLimiter(cfg.PerIP.Capacity, cfg.PerIP.RefillRate, cfg.BucketTTL)
	}
	for endpoint, limit := range cfg.EndpointLimits {
		mw.endpointLimiters[endpoint] = NewRateLimiter(limit.Capacity, limit.RefillRate, cfg.BucketTTL)
	}
	return mw
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.clientIP(r)

		var last Decision
		if m.ipLimiter != nil && ip != "" {
			d := m.ipLimiter.Take(ip)
			if !d.Allowed {
				m.rateLimitExceeded(w, r, "ip", d)
				return
			}
			last = d
		}

		endpointKey := r.Method + " " + r.URL.Path
		if limiter, exists := m.endpointLimiters[endpointKey]; exists {
			d := limiter.Take(ip)
			if !d.Allowed {
				m.rateLimitExceeded(w, r, "endpoint", d)
				return
			}
			last = d
		}

		if m.config.IncludeHeaders && last.Limit > 0 {
			setHeaders(w, last)
		}
		next.ServeHTTP(w, r)
	})
}

// Stop ends the cleanup goroutines of every limiter.
func (m *Middleware) Stop() {
	if m.ipLimiter != nil {
		m.ipLimiter.Stop()
	}
	for _, l := range m.endpointLimiters {
		l.Stop()
	}
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, scope string, d Decision) {
	slog.Warn("Rate limit exceeded",
		"scope", scope,
		"ip", m.clientIP(r),
		"path", r.URL.Path,
		"method", r.Method,
	)
	m.metrics.IncRateLimited(scope)

	retryAfter := retrySeconds(d.RetryAfter)
	w.Header().Set("Retry-After", retryAfter)
	if m.config.IncludeHeaders {
		setHeaders(w, d)
	}

	err := gwerrors.RateLimitExceeded(retryAfter).WithDetail("scope", scope)
	render.Status(r, http.StatusTooManyRequests)
	render.JSON(w, r, map[string]interface{}{
		"error":   err.Message,
		"code":    string(err.Code),
		"details": err.Details,
	})
}

func setHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
}

func retrySeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%d", secs)
}

// clientIP returns the address the buckets are keyed on. Forwarding headers
// are honoured only when the connection comes from a trusted proxy; the
// client is then the right-most X-Forwarded-For entry that is not itself a
// trusted proxy.
func (m *Middleware) clientIP(r *http.Request) string {
	peer := remoteIP(r)
	if !m.trusted(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		leftmost := ""
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				// a malformed hop ends the chain we can vouch for
				break
			}
			leftmost = addr.Unmap().String()
			if !m.trusted(leftmost) {
				return leftmost
			}
		}
		if leftmost != "" {
			return leftmost
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}
	return peer
}

func (m *Middleware) trusted(ip string) bool {
	if len(m.config.TrustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range m.config.TrustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GetStats returns statistics about all rate limiters
func (m *Middleware) GetStats() map[string]Stats {
	stats := make(map[string]Stats)
	if m.ipLimiter != nil {
		stats["ip"] = m.ipLimiter.GetStats()
	}
	for endpoint, limiter := range m.endpointLimiters {
		stats["endpoint:"+endpoint] = limiter.GetStats()
	}
	return stats
}

// Describe and Collect export GetStats as a Prometheus gauge.
func (m *Middleware) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.bucketsDesc
}

func (m *Middleware) Collect(ch chan<- prometheus.Metric) {
	for name, s := range m.GetStats() {
		ch <- prometheus.MustNewConstMetric(m.bucketsDesc, prometheus.GaugeValue, float64(s.ActiveBuckets), name)
	}
}
