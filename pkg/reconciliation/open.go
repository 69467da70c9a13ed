package reconciliation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/idm-gateway/pkg/config"
)

// Open builds the store selected by cfg. The returned close function releases
// any connection the store holds and is never nil.
func Open(ctx context.Context, cfg config.ReconciliationConfig) (Store, func(), error) {
	switch cfg.Store {
	case "", config.StoreMemory:
		slog.Warn("Pending users are kept in memory and are lost on restart")
		return NewInMemoryStore(), func() {}, nil

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		store, err := NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("Pending users stored in postgres")
		return store, pool.Close, nil

	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		store, err := NewRedisStore(client, cfg.RedisPrefix)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		slog.Info("Pending users stored in redis", "prefix", cfg.RedisPrefix)
		return store, func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown reconciliation store %q", cfg.Store)
}
