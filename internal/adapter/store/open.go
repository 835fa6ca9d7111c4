package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"wingman/internal/domain"
	"wingman/internal/infra/config"
)

// RedisKeyPrefix namespaces wingman keys in a shared Redis.
const RedisKeyPrefix = "wingman:"

// Open builds the configured store. The returned closer releases it.
func Open(ctx context.Context, cfg config.StorageConfig) (domain.KVStore, io.Closer, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nopCloser{}, nil
	case "file":
		s, err := NewFileStore(filepath.Join(cfg.DataDir, "kv"))
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err := NewSQLiteStore(filepath.Join(cfg.DataDir, "wingman.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "redis":
		client, err := DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		s := NewRedisStore(client, RedisKeyPrefix)
		return s, s, nil
	default:
		return nil, nil, domain.NewDomainError("store.Open", domain.ErrInvalidInput, cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
