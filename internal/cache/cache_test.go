package cache_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoahCxrest/nk-cache-proxy/internal/cache"
	"github.com/NoahCxrest/nk-cache-proxy/internal/cache/memory"
)

func newResponse(status int, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{StatusCode: status, Header: header}
}

func openCache(t *testing.T) *cache.Cache {
	t.Helper()

	c, err := cache.Open(context.Background(), memory.New(), "")
	require.NoError(t, err)
	require.Equal(t, cache.DefaultName, c.Name())
	return c
}

func TestIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/a.js?v=1#frag", nil)

	key, err := cache.Identity(req)
	require.NoError(t, err)
	assert.Equal(t, "GET http://example.com/a.js?v=1", key)

	post := httptest.NewRequest(http.MethodPost, "http://example.com/a.js", nil)
	postKey, err := cache.Identity(post)
	require.NoError(t, err)
	assert.NotEqual(t, key, postKey)
}

func TestIdentityRelativeUsesHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/a.js", nil)
	req.URL.Scheme = ""
	req.URL.Host = ""
	req.Host = "origin.test"

	key, err := cache.Identity(req)
	require.NoError(t, err)
	assert.Equal(t, "GET http://origin.test/a.js", key)
}

func TestPutThenMatch(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	req := httptest.NewRequest(http.MethodGet, "http://example.com/a.js", nil)

	_, ok, err := c.Match(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)

	body := []byte("console.log(1)")
	entry := cache.NewEntry(req, newResponse(http.StatusOK, http.Header{"Content-Type": {"text/javascript"}}), body)
	body[0] = 'X'
	require.NoError(t, c.Put(ctx, req, entry))

	got, ok, err := c.Match(ctx, req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, "console.log(1)", string(got.Body))
	assert.Equal(t, "text/javascript", got.Header.Get("Content-Type"))
}

func TestPutStoresErrorStatuses(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)

	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/status/"+strconv.Itoa(status), nil)
		require.NoError(t, c.Put(ctx, req, cache.NewEntry(req, newResponse(status, nil), []byte("nope"))))

		got, ok, err := c.Match(ctx, req)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, status, got.Status)
	}
}

func TestPutRejections(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)

	post := httptest.NewRequest(http.MethodPost, "http://example.com/form", nil)
	err := c.Put(ctx, post, cache.NewEntry(post, newResponse(http.StatusOK, nil), nil))
	assert.ErrorIs(t, err, cache.ErrUnsupportedMethod)

	get := httptest.NewRequest(http.MethodGet, "http://example.com/video", nil)
	err = c.Put(ctx, get, cache.NewEntry(get, newResponse(http.StatusPartialContent, nil), nil))
	assert.ErrorIs(t, err, cache.ErrPartialContent)

	err = c.Put(ctx, get, cache.NewEntry(get, newResponse(http.StatusOK, http.Header{"Vary": {"*"}}), nil))
	assert.ErrorIs(t, err, cache.ErrVaryWildcard)

	_, ok, err := c.Match(ctx, get)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchIgnoresNonGet(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)

	get := httptest.NewRequest(http.MethodGet, "http://example.com/a", nil)
	require.NoError(t, c.Put(ctx, get, cache.NewEntry(get, newResponse(http.StatusOK, nil), []byte("a"))))

	head := httptest.NewRequest(http.MethodHead, "http://example.com/a", nil)
	_, ok, err := c.Match(ctx, head)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchHonoursVary(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)

	gz := httptest.NewRequest(http.MethodGet, "http://example.com/app.js", nil)
	gz.Header.Set("Accept-Encoding", "gzip")
	resp := newResponse(http.StatusOK, http.Header{"Vary": {"accept-encoding"}})
	require.NoError(t, c.Put(ctx, gz, cache.NewEntry(gz, resp, []byte("zipped"))))

	same := httptest.NewRequest(http.MethodGet, "http://example.com/app.js", nil)
	same.Header.Set("Accept-Encoding", "gzip")
	_, ok, err := c.Match(ctx, same)
	require.NoError(t, err)
	assert.True(t, ok)

	plain := httptest.NewRequest(http.MethodGet, "http://example.com/app.js", nil)
	_, ok, err = c.Match(ctx, plain)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntryResponseIsIndependent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/a", nil)
	entry := cache.NewEntry(req, newResponse(http.StatusTeapot, http.Header{"X-A": {"1"}}), []byte("body"))

	first := entry.Response(req)
	second := entry.Response(req)

	b1, err := io.ReadAll(first.Body)
	require.NoError(t, err)
	b2, err := io.ReadAll(second.Body)
	require.NoError(t, err)

	assert.Equal(t, "body", string(b1))
	assert.Equal(t, "body", string(b2))
	assert.Equal(t, http.StatusTeapot, first.StatusCode)
	assert.Equal(t, int64(4), first.ContentLength)

	first.Header.Set("X-A", "changed")
	assert.Equal(t, "1", second.Header.Get("X-A"))
	assert.Equal(t, "1", entry.Header.Get("X-A"))
}

func TestEncodeDecode(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/a", nil)
	req.Header.Set("Accept-Language", "de")
	entry := cache.NewEntry(req, newResponse(http.StatusOK, http.Header{"Vary": {"Accept-Language"}}), []byte{0, 1, 2})

	data, err := cache.Encode(entry)
	require.NoError(t, err)

	got, err := cache.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, entry.Body, got.Body)
	assert.Equal(t, map[string]string{"Accept-Language": "de"}, got.Vary)
	assert.True(t, entry.StoredAt.Equal(got.StoredAt))

	_, err = cache.Decode([]byte("{"))
	assert.Error(t, err)
}

func TestPutDropsSetCookie(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	req := httptest.NewRequest(http.MethodGet, "http://example.com/home", nil)

	header := http.Header{
		"Set-Cookie":   {"session=alice-secret"},
		"Set-Cookie2":  {"legacy=1"},
		"Content-Type": {"text/html"},
	}
	entry := cache.NewEntry(req, newResponse(http.StatusOK, header), []byte("home"))
	require.NoError(t, c.Put(ctx, req, entry))

	assert.Equal(t, []string{"session=alice-secret"}, entry.Header.Values("Set-Cookie"))

	got, ok, err := c.Match(ctx, httptest.NewRequest(http.MethodGet, "http://example.com/home", nil))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Header.Values("Set-Cookie"))
	assert.Empty(t, got.Header.Values("Set-Cookie2"))
	assert.Equal(t, "text/html", got.Header.Get("Content-Type"))
}
