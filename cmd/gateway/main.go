package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/idm-gateway/pkg/admincred"
	"github.com/tendant/idm-gateway/pkg/audit"
	"github.com/tendant/idm-gateway/pkg/config"
	"github.com/tendant/idm-gateway/pkg/gateway"
	"github.com/tendant/idm-gateway/pkg/introspect"
	"github.com/tendant/idm-gateway/pkg/metrics"
	"github.com/tendant/idm-gateway/pkg/provider"
	"github.com/tendant/idm-gateway/pkg/ratelimit"
	"github.com/tendant/idm-gateway/pkg/realmadmin"
	"github.com/tendant/idm-gateway/pkg/reconciliation"
	"github.com/tendant/idm-gateway/pkg/registration"
	"github.com/tendant/idm-gateway/pkg/router"
	"github.com/tendant/idm-gateway/pkg/telemetry"
	"github.com/tendant/idm-gateway/pkg/token"
)

type Config struct {
	config.Gateway

	// Server
	AppConfig app.AppConfig
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})))

	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Println(config.Usage(&Config{}))
		return
	}

	loadEnvFile()

	cfg := Config{}
	if err := config.Load(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Gateway.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("Failed to setup tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	providerCfg := provider.ConfigFrom(cfg.Provider)
	client := provider.NewClient(providerCfg, provider.WithMetrics(m))

	var acquirer admincred.Acquirer = admincred.NewClientCredentials(client, providerCfg, admincred.WithMetrics(m))
	if cfg.AdminToken.CacheEnabled {
		acquirer = admincred.NewCached(acquirer, cfg.AdminToken.Skew(), admincred.WithCacheMetrics(m))
		slog.Info("Admin credential caching enabled", "skew", cfg.AdminToken.Skew())
	}

	store, closeStore, err := reconciliation.Open(ctx, cfg.Reconciliation)
	if err != nil {
		slog.Error("Failed to open reconciliation store", "store", cfg.Reconciliation.Store, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	tokens := token.NewService(client, providerCfg)
	orchestrator := registration.NewOrchestrator(
		acquirer,
		realmadmin.New(client),
		tokens,
		providerCfg.DefaultRole,
		registration.WithCompensation(cfg.Registration.Compensate, cfg.Registration.CleanupTimeout()),
		registration.WithPendingStore(store),
		registration.WithMetrics(m),
	)

	routes := router.Config{
		PrefixConfig: cfg.Prefix,
		Gateway:      gateway.NewService(orchestrator, tokens, m),
		Introspector: introspect.NewIntrospector(client, providerCfg),
		Gatherer:     registry,
	}
	if cfg.Log.Audit {
		routes.Audit = audit.NewMiddleware(audit.Config{})
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewMiddleware(
			ratelimit.ConfigFrom(cfg.RateLimit, router.LoginPath(cfg.Prefix), router.RegisterPath(cfg.Prefix)),
			m,
		)
		defer limiter.Stop()
		registry.MustRegister(limiter)
		routes.RateLimiter = limiter
	}

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	router.SetupRoutes(server.R, routes)

	slog.Info("IDM gateway ready",
		"authority", providerCfg.Authority,
		"realm", providerCfg.Realm,
		"prefix", cfg.Prefix.User,
		"compensate", cfg.Registration.Compensate,
		"store", cfg.Reconciliation.Store,
	)

	server.Run()
}

func setupLogger(c config.LogConfig) {
	opts := &slog.HandlerOptions{AddSource: c.AddSource, Level: c.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if c.JSON() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadEnvFile loads .env from the executable's directory, then the working
// directory.
func loadEnvFile() {
	execPath, err := os.Executable()
	if err != nil {
		return
	}

	envFile := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, _ := os.Getwd()
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}
