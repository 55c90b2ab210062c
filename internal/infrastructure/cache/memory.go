package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"crm-schema-migrator/internal/ports"
)

type cacheItem[T any] struct {
	value     T
	expiresAt time.Time // zero means no expiry
}

// Compile-time interface check.
var _ ports.Cache[struct{}] = (*MemoryCache[struct{}])(nil)

// MemoryCache implements ports.Cache with in-memory storage.
// Uses lazy expiration (checks expiry on Get).
// Suitable for single-instance deployments and tests.
type MemoryCache[T any] struct {
	mu    sync.RWMutex
	items map[string]cacheItem[T]
	now   func() time.Time
}

// NewMemoryCache creates a new memory cache instance.
func NewMemoryCache[T any]() *MemoryCache[T] {
	return NewMemoryCacheWithClock[T](time.Now)
}

// NewMemoryCacheWithClock creates a memory cache that reads time from now, so tests can
// move expiry forward without sleeping.
func NewMemoryCacheWithClock[T any](now func() time.Time) *MemoryCache[T] {
	return &MemoryCache[T]{
		items: make(map[string]cacheItem[T]),
		now:   now,
	}
}

// Get retrieves a value from cache.
func (m *MemoryCache[T]) Get(_ context.Context, key string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists || m.expired(item) {
		var zero T
		return zero, ports.ErrCacheMiss
	}
	return item.value, nil
}

// TTL returns the remaining lifetime of key, 0 when it never expires.
func (m *MemoryCache[T]) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists || m.expired(item) {
		return 0, ports.ErrCacheMiss
	}
	if item.expiresAt.IsZero() {
		return 0, nil
	}
	return item.expiresAt.Sub(m.now()), nil
}

// Set stores a value in cache with TTL. A ttl <= 0 keeps the value until deleted.
func (m *MemoryCache[T]) Set(_ context.Context, key string, value T, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := cacheItem[T]{value: value}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

// Delete removes a key from cache.
func (m *MemoryCache[T]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *MemoryCache[T]) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

// Close cleans up resources.
func (m *MemoryCache[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]cacheItem[T])
	return nil
}

// Health checks if the cache is healthy (always true for memory cache).
func (m *MemoryCache[T]) Health(context.Context) error {
	return nil
}

func (m *MemoryCache[T]) expired(item cacheItem[T]) bool {
	return !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt)
}
