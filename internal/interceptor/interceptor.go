// Package interceptor answers outgoing requests cache-first: a stored response
// is returned as-is, otherwise the network is consulted and a copy of its
// response is written back to the cache in the background.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/NoahCxrest/nk-cache-proxy/internal/cache"
)

const defaultWriteTimeout = 5 * time.Second

// Fetcher performs the network request for a cache miss.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// RoundTripperFetcher fetches through rt.
func RoundTripperFetcher(rt http.RoundTripper) Fetcher {
	return FetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return rt.RoundTrip(req.WithContext(ctx))
	})
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithCacheName selects the bucket the interceptor opens.
func WithCacheName(name string) Option {
	return func(i *Interceptor) { i.name = name }
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) { i.logger = logger }
}

// WithWriteTimeout bounds each background cache write.
func WithWriteTimeout(d time.Duration) Option {
	return func(i *Interceptor) { i.writeTimeout = d }
}

// WithCoalescing makes concurrent misses for one identity share a single fetch.
func WithCoalescing(enabled bool) Option {
	return func(i *Interceptor) { i.coalesce = enabled }
}

// Interceptor implements the cache-first strategy over a cache.Storage and a Fetcher.
// It is safe for concurrent use.
type Interceptor struct {
	storage      cache.Storage
	fetcher      Fetcher
	name         string
	logger       *slog.Logger
	writeTimeout time.Duration
	coalesce     bool

	openMu sync.Mutex
	opened *cache.Cache

	sgroup  singleflight.Group
	pending sync.WaitGroup
}

// New constructs an interceptor.
func New(storage cache.Storage, fetcher Fetcher, opts ...Option) *Interceptor {
	i := &Interceptor{
		storage:      storage,
		fetcher:      fetcher,
		name:         cache.DefaultName,
		logger:       slog.New(slog.DiscardHandler),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With(slog.String("component", "interceptor"), slog.String("cache", i.name))
	return i
}

// Intercept answers req from the cache, or from the network on a miss.
// A network failure is returned to the caller and nothing is stored.
func (i *Interceptor) Intercept(ctx context.Context, req *http.Request) (*http.Response, error) {
	c, err := i.open(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok, err := c.Match(ctx, req)
	if err != nil {
		return nil, err
	}
	if ok {
		i.logger.Debug("cache hit", slog.String("method", req.Method), slog.String("url", req.URL.String()))
		return entry.Response(req), nil
	}

	i.logger.Debug("cache miss", slog.String("method", req.Method), slog.String("url", req.URL.String()))

	if !i.coalesce {
		entry, err := i.fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		i.store(ctx, c, req, entry.Clone())
		return entry.Response(req), nil
	}

	key, err := cache.Identity(req)
	if err != nil {
		return nil, err
	}

	// The shared fetch outlives any single caller; the forwarder's request
	// timeout still bounds it.
	ch := i.sgroup.DoChan(key, func() (any, error) {
		entry, err := i.fetch(context.WithoutCancel(ctx), req)
		if err != nil {
			return nil, err
		}
		i.store(ctx, c, req, entry.Clone())
		return sharedFetch{leader: req, entry: entry}, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.(sharedFetch)
		if shared.leader == req {
			return shared.entry.Response(req), nil
		}
		if !shared.entry.MatchesVary(req) {
			i.logger.Debug("coalesced variant mismatch", slog.String("url", req.URL.String()))
			entry, err := i.fetch(ctx, req)
			if err != nil {
				return nil, err
			}
			i.store(ctx, c, req, entry.Clone())
			return entry.Response(req), nil
		}
		// Followers get what a later cache hit would return.
		return shared.entry.Shareable().Response(req), nil
	}
}

type sharedFetch struct {
	leader *http.Request
	entry  cache.Entry
}

// Settle blocks until every background cache write has finished or ctx is done.
func (i *Interceptor) Settle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		i.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Interceptor) open(ctx context.Context) (*cache.Cache, error) {
	i.openMu.Lock()
	defer i.openMu.Unlock()

	if i.opened != nil {
		return i.opened, nil
	}

	c, err := cache.Open(ctx, i.storage, i.name)
	if err != nil {
		return nil, err
	}
	i.opened = c
	return c, nil
}

// fetch reads the network response fully; the body can only be consumed once
// and both the cache and the caller need it.
func (i *Interceptor) fetch(ctx context.Context, req *http.Request) (cache.Entry, error) {
	resp, err := i.fetcher.Fetch(ctx, req)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("read body %s: %w", req.URL, err)
	}

	return cache.NewEntry(req, resp, body), nil
}

// store writes entry in the background. The caller may reuse req once
// Intercept returns, so the write works on a snapshot.
func (i *Interceptor) store(ctx context.Context, c *cache.Cache, req *http.Request, entry cache.Entry) {
	ctx = context.WithoutCancel(ctx)
	req = req.Clone(ctx)

	i.pending.Add(1)
	go func() {
		defer i.pending.Done()

		ctx, cancel := context.WithTimeout(ctx, i.writeTimeout)
		defer cancel()

		if err := c.Put(ctx, req, entry); err != nil {
			level := slog.LevelWarn
			if errors.Is(err, cache.ErrUnsupportedMethod) {
				level = slog.LevelDebug
			}
			i.logger.Log(ctx, level, "cache put failed",
				slog.String("method", req.Method),
				slog.String("url", req.URL.String()),
				slog.String("error", err.Error()))
			return
		}
		i.logger.Debug("cache put", slog.String("url", req.URL.String()), slog.Int("status", entry.Status))
	}()
}
