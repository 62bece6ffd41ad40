package storage

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	namespace string
	data      map[string]*item
	mu        sync.RWMutex
	stopCh    chan struct{}
	closeOnce sync.Once
}

type item struct {
	value     []byte
	expiresAt time.Time
}

func (i *item) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

func NewMemoryStore(namespace string) *MemoryStore {
	ms := &MemoryStore{
		namespace: namespace,
		data:      make(map[string]*item),
		stopCh:    make(chan struct{}),
	}

	go ms.cleanupExpired()

	return ms
}

func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	it, exists := ms.data[namespaced(ms.namespace, key)]
	if !exists || it.expired(time.Now()) {
		return nil, ErrNotFound
	}

	valueCopy := make([]byte, len(it.value))
	copy(valueCopy, it.value)
	return valueCopy, nil
}

func (ms *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	it := &item{value: valueCopy}
	if ttl > 0 {
		it.expiresAt = time.Now().Add(ttl)
	}
	ms.data[namespaced(ms.namespace, key)] = it

	return nil
}

func (ms *MemoryStore) Remove(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.data, namespaced(ms.namespace, key))
	return nil
}

func (ms *MemoryStore) Take(ctx context.Context, key string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	k := namespaced(ms.namespace, key)
	it, exists := ms.data[k]
	if !exists {
		return false, nil
	}

	delete(ms.data, k)
	return !it.expired(time.Now()), nil
}

func (ms *MemoryStore) Close() error {
	ms.closeOnce.Do(func() { close(ms.stopCh) })
	return nil
}

func (ms *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.cleanup()
		case <-ms.stopCh:
			return
		}
	}
}

func (ms *MemoryStore) cleanup() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for key, it := range ms.data {
		if it.expired(now) {
			delete(ms.data, key)
		}
	}
}
