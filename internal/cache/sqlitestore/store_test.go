package sqlitestore

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoahCxrest/nk-cache-proxy/internal/cache"
	"github.com/NoahCxrest/nk-cache-proxy/internal/cache/cachetest"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	cachetest.Run(t, openStore(t, filepath.Join(t.TempDir(), "cache.db")))
}

func TestEntriesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	first, err := Open(path)
	require.NoError(t, err)
	b, err := first.Open(ctx, cache.DefaultName)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "GET http://example.com/a.js", cache.Entry{Status: http.StatusOK, Body: []byte("console.log(1)")}))
	require.NoError(t, first.Close())

	second := openStore(t, path)
	b, err = second.Open(ctx, cache.DefaultName)
	require.NoError(t, err)

	got, ok, err := b.Get(ctx, "GET http://example.com/a.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "console.log(1)", string(got.Body))
}

func TestEmptyBody(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	b, err := s.Open(ctx, cache.DefaultName)
	require.NoError(t, err)

	require.NoError(t, b.Set(ctx, "GET http://example.com/empty", cache.Entry{Status: http.StatusNoContent}))

	got, ok, err := b.Get(ctx, "GET http://example.com/empty")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNoContent, got.Status)
	assert.Empty(t, got.Body)
	assert.Nil(t, got.Vary)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
