package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the keys written by RedisStore.
const DefaultRedisPrefix = "idm-gateway:pending"

// RedisStore keeps one JSON value per pending user plus a set of ids.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store; an empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":ids"
}

func (s *RedisStore) recordKey(id uuid.UUID) string {
	return s.prefix + ":" + id.String()
}

func (s *RedisStore) Save(ctx context.Context, p PendingUser) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending user: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(p.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), p.ID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pending user: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]PendingUser, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending user ids: %w", err)
	}
	if len(ids) == 0 {
		return []PendingUser{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		keys = append(keys, s.recordKey(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load pending users: %w", err)
	}

	out := make([]PendingUser, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// index entry without a value
			continue
		}
		var p PendingUser
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			return nil, fmt.Errorf("decode pending user %s: %w", keys[i], err)
		}
		out = append(out, p)
	}
	sortByCreated(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.recordKey(id))
		pipe.SRem(ctx, s.indexKey(), id.String())
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete pending user: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}
