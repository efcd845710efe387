package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/xxh3"

	"github.com/NoahCxrest/nk-cache-proxy/internal/cache"
)

const defaultPrefix = "nkcache"

// Store implements cache.Storage backed by Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// New constructs a Redis-backed cache store.
func New(rawURL, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client. An empty prefix falls back to the default.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close terminates the underlying Redis client connections.
func (s *Store) Close() error {
	return s.client.Close()
}

// Open registers the bucket name and returns a namespaced view of the keyspace.
func (s *Store) Open(ctx context.Context, name string) (cache.Bucket, error) {
	if err := s.client.SAdd(ctx, s.prefix+":buckets", name).Err(); err != nil {
		return nil, fmt.Errorf("redis register bucket %q: %w", name, err)
	}
	return &bucket{client: s.client, ns: s.prefix + ":" + name + ":"}, nil
}

// Buckets lists every bucket ever opened under the prefix.
func (s *Store) Buckets(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.prefix+":buckets").Result()
	if err != nil {
		return nil, fmt.Errorf("redis list buckets: %w", err)
	}
	return names, nil
}

type bucket struct {
	client *redis.Client
	ns     string
}

// Identities can be long URLs, so keys carry a hash of the identity.
func (b *bucket) key(identity string) string {
	return b.ns + strconv.FormatUint(xxh3.HashString(identity), 16)
}

// Get retrieves a cached entry if present.
func (b *bucket) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	data, err := b.client.HGet(ctx, b.key(key), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	entry, err := cache.Decode(data)
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode cached entry %q: %w", key, err)
	}

	return entry, true, nil
}

// Set stores an entry without expiry.
func (b *bucket) Set(ctx context.Context, key string, entry cache.Entry) error {
	data, err := cache.Encode(entry)
	if err != nil {
		return fmt.Errorf("encode cached entry %q: %w", key, err)
	}

	if err := b.client.HSet(ctx, b.key(key), key, data).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}

	return nil
}
