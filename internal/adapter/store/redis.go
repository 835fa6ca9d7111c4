package store

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"wingman/internal/domain"
)

// ErrRedisNil is returned by a RedisClient when a key does not exist.
var ErrRedisNil = goredis.Nil

// RedisClient abstracts the Redis operations RedisStore needs, so a real
// go-redis client or a mock can be used interchangeably.
type RedisClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// RedisStore keeps values in Redis under a key prefix.
type RedisStore struct {
	client RedisClient
	prefix string
}

// NewRedisStore creates a store on client. prefix namespaces every key.
func NewRedisStore(client RedisClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.prefix+key)
	if errors.Is(err, ErrRedisNil) {
		return nil, domain.NewDomainError("RedisStore.Get", domain.ErrNotFound, key)
	}
	if err != nil {
		return nil, domain.NewDomainError("RedisStore.Get", domain.ErrStorage, err.Error())
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value); err != nil {
		return domain.NewDomainError("RedisStore.Set", domain.ErrStorage, err.Error())
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Name() string { return "redis" }

// goRedisClient adapts a go-redis client to RedisClient.
type goRedisClient struct {
	client *goredis.Client
}

// DialRedis connects to the Redis server at rawURL and pings it.
func DialRedis(ctx context.Context, rawURL string) (RedisClient, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &goRedisClient{client: rdb}, nil
}

func (r *goRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	return r.client.Get(ctx, key).Bytes()
}

func (r *goRedisClient) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *goRedisClient) Close() error { return r.client.Close() }
