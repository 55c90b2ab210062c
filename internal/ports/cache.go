package ports

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// Cache is a generic TTL key/value store. A ttl <= 0 stores the value without expiry.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// DeletePrefix drops every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error

	Health(ctx context.Context) error
	Close() error
}
