package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"wingman/internal/domain"
)

// FileStore keeps one file per key under a directory. Writes are atomic.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewDomainError("FileStore.Get", domain.ErrNotFound, key)
	}
	if err != nil {
		return nil, domain.NewDomainError("FileStore.Get", domain.ErrStorage, err.Error())
	}
	return data, nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, "kv-*.tmp")
	if err != nil {
		return domain.NewDomainError("FileStore.Set", domain.ErrStorage, err.Error())
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.NewDomainError("FileStore.Set", domain.ErrStorage, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.NewDomainError("FileStore.Set", domain.ErrStorage, err.Error())
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return domain.NewDomainError("FileStore.Set", domain.ErrStorage, err.Error())
	}
	return nil
}

func (s *FileStore) Name() string { return "file" }
