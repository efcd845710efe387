// Package memory keeps cache buckets in process memory.
package memory

import (
	"context"
	"sync"

	gcache "github.com/Code-Hex/go-generics-cache"

	"github.com/NoahCxrest/nk-cache-proxy/internal/cache"
)

// Store implements cache.Storage. Entries live until the process exits.
type Store struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// New constructs an empty store.
func New() *Store {
	return &Store{buckets: make(map[string]*bucket)}
}

// Open returns the named bucket, creating it on first use.
func (s *Store) Open(_ context.Context, name string) (cache.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[name]
	if !ok {
		b = &bucket{entries: gcache.New[string, cache.Entry]()}
		s.buckets[name] = b
	}
	return b, nil
}

// Names lists the buckets opened so far.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	return names
}

type bucket struct {
	entries *gcache.Cache[string, cache.Entry]
}

// Get hands out a copy so callers cannot mutate the stored entry.
func (b *bucket) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return cache.Entry{}, false, err
	}

	entry, ok := b.entries.Get(key)
	if !ok {
		return cache.Entry{}, false, nil
	}
	return entry.Clone(), true, nil
}

func (b *bucket) Set(ctx context.Context, key string, entry cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.entries.Set(key, entry.Clone())
	return nil
}

// Len reports how many entries the bucket holds.
func (b *bucket) Len() int {
	return b.entries.Len()
}
