package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vapvarun/fymodules"
)

// RedisStore keeps each module record as a JSON string under prefix+id.
// SET replaces a key atomically.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the server at url and verifies it answers.
func OpenRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStore(client, prefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (fymodules.Record, bool, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fymodules.Record{}, false, nil
	}
	if err != nil {
		return fymodules.Record{}, false, fmt.Errorf("failed to read module %s: %w", id, err)
	}

	var rec fymodules.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fymodules.Record{}, false, fmt.Errorf("failed to decode module %s: %w", id, err)
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, rec fymodules.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode module %s: %w", id, err)
	}
	if err := s.client.Set(ctx, s.key(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save module %s: %w", id, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
