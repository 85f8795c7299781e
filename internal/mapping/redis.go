package mapping

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	// Redis server address.
	Address string
	// Password required when connecting to the Redis server.
	Password string
	// DB to connect to.
	DB int
	// TLS config.
	TLSConfig *tls.Config
	// KeyPrefix namespaces mapping keys; defaults to "rpacs:mapping:".
	KeyPrefix string
}

// DefaultRedisOptions returns options for a local unauthenticated server.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Address:   "localhost:6379",
		KeyPrefix: "rpacs:mapping:",
	}
}

// RedisStore persists mapping entries in Redis. SETNX is the atomic
// insert-if-absent the Store contract requires: the first caller commits
// its value, every other caller reads the committed one.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects a store to Redis.
func NewRedisStore(opts RedisOptions) *RedisStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "rpacs:mapping:"
	}
	client := redis.NewClient(&redis.Options{
		TLSConfig: opts.TLSConfig,
		Addr:      opts.Address,
		Password:  opts.Password,
		DB:        opts.DB,
	})
	return &RedisStore{client: client, prefix: opts.KeyPrefix}
}

// Close releases the underlying connection.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) redisKey(key Key) string { return s.prefix + key.String() }

// GetOrCreate returns the committed replacement for key, committing a
// freshly generated one if absent. Mapping entries never expire: a key
// must yield the same value for the lifetime of the store.
func (s *RedisStore) GetOrCreate(ctx context.Context, key Key, gen Generator) (string, error) {
	k := s.redisKey(key)

	v, err := s.client.Get(ctx, k).Result()
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("could not read mapping %s: %w", key, err)
	}

	fresh, err := gen()
	if err != nil {
		return "", fmt.Errorf("could not generate replacement value: %w", err)
	}

	// SETNX then GET, retried: a concurrent DEL-free writer guarantees the
	// GET after a lost SETNX race observes the winner's value, but network
	// errors in between are retryable.
	var committed string
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(20*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		set, err := s.client.SetNX(ctx, k, fresh, 0).Result()
		if err != nil {
			return retry.RetryableError(fmt.Errorf("could not commit mapping %s: %w", key, err))
		}
		if set {
			committed = fresh
			return nil
		}
		winner, err := s.client.Get(ctx, k).Result()
		if err != nil {
			return retry.RetryableError(fmt.Errorf("could not read committed mapping %s: %w", key, err))
		}
		committed = winner
		return nil
	})
	if err != nil {
		return "", err
	}
	return committed, nil
}
