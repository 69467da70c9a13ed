// Command reconcile makes one pass over users that were created at the
// provider but never received their default role, assigning the role or
// dropping the record when the user no longer exists.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tendant/idm-gateway/pkg/admincred"
	"github.com/tendant/idm-gateway/pkg/config"
	"github.com/tendant/idm-gateway/pkg/provider"
	"github.com/tendant/idm-gateway/pkg/realmadmin"
	"github.com/tendant/idm-gateway/pkg/reconciliation"
)

type Config struct {
	Provider       config.ProviderConfig
	Reconciliation config.ReconciliationConfig
	Log            config.LogConfig
}

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded .env file")
	}

	cfg := Config{}
	if err := config.Load(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg.Provider.Validate, cfg.Reconciliation.Validate); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: cfg.Log.AddSource,
		Level:     cfg.Log.SlogLevel(),
	})))

	if cfg.Reconciliation.Store == config.StoreMemory {
		slog.Error("Reconciliation needs a shared store; set RECONCILIATION_STORE to postgres or redis")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := reconciliation.Open(ctx, cfg.Reconciliation)
	if err != nil {
		slog.Error("Failed to open reconciliation store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	providerCfg := provider.ConfigFrom(cfg.Provider)
	client := provider.NewClient(providerCfg)
	reconciler := reconciliation.NewReconciler(
		store,
		admincred.NewClientCredentials(client, providerCfg),
		realmadmin.New(client),
		nil,
	)

	result, err := reconciler.Run(ctx)
	if err != nil {
		slog.Error("Reconciliation failed", "error", err)
		closeStore()
		os.Exit(1)
	}
	slog.Info("Reconciliation finished",
		"resolved", result.Resolved,
		"dropped", result.Dropped,
		"failed", result.Failed,
	)
	if result.Failed > 0 {
		closeStore()
		os.Exit(2)
	}
}
