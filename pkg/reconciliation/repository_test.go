package reconciliation

import (
	"bufio"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// cleanupContainer terminates container when the test ends, printing its logs
// first if the test failed.
func cleanupContainer(t *testing.T, container testcontainers.Container) {
	t.Helper()
	t.Cleanup(func() {
		ctx := context.Background()
		if t.Failed() {
			if logs, err := container.Logs(ctx); err == nil {
				scanner := bufio.NewScanner(logs)
				for scanner.Scan() {
					t.Log(scanner.Text())
				}
				logs.Close()
			}
		}
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
}

// testStore exercises the Store contract shared by every implementation.
func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	older := NewPendingUser("user-1", "alice", "user", "RoleAssign", "status 500")
	older.CreatedAt = time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)
	newer := NewPendingUser("user-2", "bob", "user", "RoleLookup", "status 404")
	newer.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	t.Run("EmptyList", func(t *testing.T) {
		records, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("SaveAndList", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newer))
		require.NoError(t, store.Save(ctx, older))

		records, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, older.ID, records[0].ID)
		assert.Equal(t, "alice", records[0].Username)
		assert.Equal(t, "RoleAssign", records[0].Stage)
		assert.True(t, older.CreatedAt.Equal(records[0].CreatedAt))
		assert.Equal(t, newer.ID, records[1].ID)
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		updated := older
		updated.Detail = "status 503"
		require.NoError(t, store.Save(ctx, updated))

		records, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "status 503", records[0].Detail)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, older.ID))
		assert.ErrorIs(t, store.Delete(ctx, older.ID), ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, uuid.New()), ErrNotFound)

		records, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, newer.ID, records[0].ID)
	})
}

func TestInMemoryStore(t *testing.T) {
	testStore(t, NewInMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("gateway"),
		postgres.WithUsername("gateway"),
		postgres.WithPassword("gateway"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	cleanupContainer(t, container)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store, err := NewPostgresStore(pool)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))

	testStore(t, store)
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	cleanupContainer(t, container)

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(addr)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client, "test:pending")
	require.NoError(t, err)

	testStore(t, store)
}

func TestNewStoresRejectNil(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
	_, err = NewRedisStore(nil, "")
	assert.Error(t, err)
}
