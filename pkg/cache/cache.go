// Package cache holds identity lookups in front of the identity table.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrMiss is returned when a key is not cached
var ErrMiss = errors.New("cache miss")

// Cache maps string keys to local record ids
type Cache interface {
	Get(ctx context.Context, key string) (int, error)
	Set(ctx context.Context, key string, value int) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Close() error
}

// MemoryCache implements an in-memory LRU cache with TTL
type MemoryCache struct {
	cache *lru.LRU[string, int]
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: lru.NewLRU[string, int](size, nil, ttl),
	}
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) (int, error) {
	val, ok := m.cache.Get(key)
	if !ok {
		return 0, ErrMiss
	}
	return val, nil
}

// Set stores a value in the cache
func (m *MemoryCache) Set(ctx context.Context, key string, value int) error {
	m.cache.Add(key, value)
	return nil
}

// Delete removes a key from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

// DeletePattern removes all keys matching a trailing-star pattern
func (m *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for _, key := range m.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.cache.Remove(key)
		}
	}
	return nil
}

// Len reports the number of cached entries
func (m *MemoryCache) Len() int {
	return m.cache.Len()
}

// Close empties the cache
func (m *MemoryCache) Close() error {
	m.cache.Purge()
	return nil
}

// RedisCache implements a Redis-backed cache shared between processes
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(host string, port int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}, nil
}

// Get retrieves a value from Redis
func (r *RedisCache) Get(ctx context.Context, key string) (int, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// Set stores a value in Redis
func (r *RedisCache) Set(ctx context.Context, key string, value int) error {
	return r.client.Set(ctx, key, strconv.Itoa(value), r.ttl).Err()
}

// Delete removes a key from Redis
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// DeletePattern removes all keys matching a pattern
func (r *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	if !strings.HasSuffix(pattern, "*") {
		pattern += "*"
	}

	var cursor uint64
	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Options selects a cache backend
type Options struct {
	Type      string // "memory", "redis" or "none"
	Size      int
	TTL       time.Duration
	RedisHost string
	RedisPort int
}

// New builds the configured cache. A Redis cache that cannot be reached falls
// back to memory and returns the connection error alongside it. Type "none"
// yields a nil Cache.
func New(opts Options) (Cache, error) {
	switch opts.Type {
	case "none":
		return nil, nil
	case "redis":
		rc, err := NewRedisCache(opts.RedisHost, opts.RedisPort, opts.TTL)
		if err != nil {
			return NewMemoryCache(opts.Size, opts.TTL), err
		}
		return rc, nil
	default:
		return NewMemoryCache(opts.Size, opts.TTL), nil
	}
}
