package cache

import (
	"context"
	"fmt"
	"net/http"
)

// Cache applies request matching rules on top of a single bucket.
type Cache struct {
	name   string
	bucket Bucket
}

// Open opens (or creates) the named bucket in storage.
func Open(ctx context.Context, storage Storage, name string) (*Cache, error) {
	if name == "" {
		name = DefaultName
	}

	bucket, err := storage.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", name, err)
	}

	return &Cache{name: name, bucket: bucket}, nil
}

// Name reports the bucket name.
func (c *Cache) Name() string {
	return c.name
}

// Match returns the entry stored for req. Non-GET requests never match.
func (c *Cache) Match(ctx context.Context, req *http.Request) (Entry, bool, error) {
	if methodOf(req) != http.MethodGet {
		return Entry{}, false, nil
	}

	key, err := Identity(req)
	if err != nil {
		return Entry{}, false, err
	}

	entry, ok, err := c.bucket.Get(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("match %q: %w", key, err)
	}
	if !ok {
		return Entry{}, false, nil
	}

	if !entry.MatchesVary(req) {
		return Entry{}, false, nil
	}

	return entry, true, nil
}

// Put stores entry under the identity of req, replacing any previous entry.
// Error statuses are stored like any other. Set-Cookie headers are dropped.
func (c *Cache) Put(ctx context.Context, req *http.Request, entry Entry) error {
	if methodOf(req) != http.MethodGet {
		return ErrUnsupportedMethod
	}
	if entry.Status == http.StatusPartialContent {
		return ErrPartialContent
	}
	if _, ok := entry.Vary["*"]; ok {
		return ErrVaryWildcard
	}
	for _, name := range varyNames(entry.Header) {
		if name == "*" {
			return ErrVaryWildcard
		}
	}

	key, err := Identity(req)
	if err != nil {
		return err
	}

	if err := c.bucket.Set(ctx, key, entry.Shareable()); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	return nil
}
