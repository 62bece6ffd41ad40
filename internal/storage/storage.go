// Package storage is the persistent key/value layer the session
// coordinator keeps its browser-tab state in: the pending-action marker,
// the cached user blob and the provider's persisted session.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/marcogenualdo/session-coordinator/internal/config"
)

var ErrNotFound = errors.New("key not found")

// Store is a namespaced key/value store. A ttl <= 0 keeps the value until
// it is removed.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	// Take removes key and reports whether it was present. Of several
	// concurrent calls for one key, at most one reports true.
	Take(ctx context.Context, key string) (bool, error)
	Close() error
}

func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.Namespace), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("redis config is required for redis storage type")
		}
		return NewRedisStore(*cfg.Redis, cfg.Namespace)
	default:
		return nil, errors.New("unsupported storage type: " + cfg.Type)
	}
}

func namespaced(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}
