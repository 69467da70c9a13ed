package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/idm-gateway/pkg/audit"
	pkgconfig "github.com/tendant/idm-gateway/pkg/config"
	"github.com/tendant/idm-gateway/pkg/gateway"
	"github.com/tendant/idm-gateway/pkg/gateway/api"
	"github.com/tendant/idm-gateway/pkg/introspect"
	"github.com/tendant/idm-gateway/pkg/ratelimit"
)

// Config holds all the dependencies needed to setup routes
type Config struct {
	// Prefix configuration for all routes
	PrefixConfig pkgconfig.PrefixConfig

	Gateway gateway.Gateway

	// Bearer token check for /refresh and /logout. Optional: nil leaves the
	// routes unprotected.
	Introspector *introspect.Introspector

	// Rate limiting for /register and /login. Optional.
	RateLimiter *ratelimit.Middleware

	// Per-request audit records for all four operations. Optional.
	Audit *audit.Middleware

	// Prometheus gatherer served at PrefixConfig.Metrics. Optional.
	Gatherer prometheus.Gatherer
}

// SetupRoutes mounts the gateway routes on the provided router
func SetupRoutes(router chi.Router, cfg Config) {
	var opts []api.Option
	if cfg.RateLimiter != nil {
		opts = append(opts, api.WithPublicMiddleware(cfg.RateLimiter.Handler))
	}
	if cfg.Introspector != nil {
		opts = append(opts, api.WithProtectedMiddleware(introspect.Middleware(cfg.Introspector)))
	} else {
		slog.Warn("No introspector configured, /refresh and /logout accept requests without a bearer token")
	}

	if cfg.Audit != nil {
		opts = append(opts,
			api.WithPublicMiddleware(cfg.Audit.Handler),
			api.WithProtectedMiddleware(cfg.Audit.Handler),
		)
	}

	handle := api.NewHandle(cfg.Gateway, opts...)
	router.Route(cfg.PrefixConfig.User, handle.RegisterRoutes)

	if cfg.Gatherer != nil && cfg.PrefixConfig.Metrics != "" {
		router.Handle(cfg.PrefixConfig.Metrics, MetricsHandler(cfg.Gatherer))
	}
}

// MetricsHandler serves the Prometheus exposition format for g.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// LoginPath and RegisterPath are the full routed paths of the public
// endpoints, used to key the per-endpoint rate limits.
func LoginPath(p pkgconfig.PrefixConfig) string {
	return p.User + "/login"
}

func RegisterPath(p pkgconfig.PrefixConfig) string {
	return p.User + "/register"
}
