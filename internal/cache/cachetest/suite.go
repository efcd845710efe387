// Package cachetest holds behaviour checks shared by every cache.Storage backend.
package cachetest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoahCxrest/nk-cache-proxy/internal/cache"
)

// Run exercises storage against the cache.Storage contract.
func Run(t *testing.T, storage cache.Storage) {
	t.Run("missing key", func(t *testing.T) {
		b, err := storage.Open(context.Background(), "missing")
		require.NoError(t, err)

		_, ok, err := b.Get(context.Background(), "GET http://example.com/none")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("round trip", func(t *testing.T) {
		ctx := context.Background()
		b, err := storage.Open(ctx, "roundtrip")
		require.NoError(t, err)

		want := cache.Entry{
			Status:   http.StatusOK,
			Header:   http.Header{"Content-Type": {"text/javascript"}, "X-Multi": {"a", "b"}},
			Body:     []byte("console.log(1)"),
			Vary:     map[string]string{"Accept-Encoding": "gzip"},
			StoredAt: time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, b.Set(ctx, "GET http://example.com/a.js", want))

		got, ok, err := b.Get(ctx, "GET http://example.com/a.js")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want.Status, got.Status)
		assert.Equal(t, want.Header, got.Header)
		assert.Equal(t, want.Body, got.Body)
		assert.Equal(t, want.Vary, got.Vary)
		assert.True(t, want.StoredAt.Equal(got.StoredAt))
	})

	t.Run("last write wins", func(t *testing.T) {
		ctx := context.Background()
		b, err := storage.Open(ctx, "overwrite")
		require.NoError(t, err)

		key := "GET http://example.com/a.js"
		require.NoError(t, b.Set(ctx, key, cache.Entry{Status: http.StatusOK, Body: []byte("old")}))
		require.NoError(t, b.Set(ctx, key, cache.Entry{Status: http.StatusOK, Body: []byte("new")}))

		got, ok, err := b.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "new", string(got.Body))
	})

	t.Run("buckets are isolated", func(t *testing.T) {
		ctx := context.Background()
		one, err := storage.Open(ctx, "one")
		require.NoError(t, err)
		two, err := storage.Open(ctx, "two")
		require.NoError(t, err)

		key := "GET http://example.com/shared"
		require.NoError(t, one.Set(ctx, key, cache.Entry{Status: http.StatusOK, Body: []byte("one")}))

		_, ok, err := two.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reopen sees entries", func(t *testing.T) {
		ctx := context.Background()
		first, err := storage.Open(ctx, "reopen")
		require.NoError(t, err)
		require.NoError(t, first.Set(ctx, "GET http://example.com/x", cache.Entry{Status: http.StatusNotFound, Body: []byte("gone")}))

		second, err := storage.Open(ctx, "reopen")
		require.NoError(t, err)
		got, ok, err := second.Get(ctx, "GET http://example.com/x")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, got.Status)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		ctx := context.Background()
		b, err := storage.Open(ctx, "concurrent")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				body := []byte(fmt.Sprintf("body-%d", i))
				assert.NoError(t, b.Set(ctx, "GET http://example.com/same", cache.Entry{Status: http.StatusOK, Body: body}))
			}(i)
		}
		wg.Wait()

		got, ok, err := b.Get(ctx, "GET http://example.com/same")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Regexp(t, `^body-\d+$`, string(got.Body))
	})
}
