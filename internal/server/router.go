package server

import (
	"log/slog"
	"net/http"

	"github.com/NoahCxrest/nk-cache-proxy/internal/cache"
	"github.com/NoahCxrest/nk-cache-proxy/internal/config"
	"github.com/NoahCxrest/nk-cache-proxy/internal/interceptor"
	"github.com/NoahCxrest/nk-cache-proxy/internal/proxy"
	"github.com/NoahCxrest/nk-cache-proxy/internal/server/intercept"
)

// NewHandler wires the forwarder, interceptor and intercepting handler together.
func NewHandler(cfg config.Config, logger *slog.Logger, storage cache.Storage, client *http.Client) (*intercept.Handler, error) {
	forwarder := &proxy.Forwarder{
		Client:         client,
		Logger:         logger.With(slog.String("component", "forwarder")),
		RequestTimeout: cfg.RequestTimeout,
	}

	ic := interceptor.New(storage, forwarder,
		interceptor.WithCacheName(cfg.CacheName),
		interceptor.WithLogger(logger),
		interceptor.WithWriteTimeout(cfg.CacheWriteTimeout),
		interceptor.WithCoalescing(cfg.CoalesceMisses),
	)

	return intercept.New(logger, ic, cfg.Targets)
}
