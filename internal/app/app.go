package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/NoahCxrest/nk-cache-proxy/internal/cache"
	"github.com/NoahCxrest/nk-cache-proxy/internal/cache/memory"
	"github.com/NoahCxrest/nk-cache-proxy/internal/cache/redisstore"
	"github.com/NoahCxrest/nk-cache-proxy/internal/cache/sqlitestore"
	"github.com/NoahCxrest/nk-cache-proxy/internal/config"
	"github.com/NoahCxrest/nk-cache-proxy/internal/server"
	"github.com/NoahCxrest/nk-cache-proxy/internal/server/intercept"
	"github.com/NoahCxrest/nk-cache-proxy/internal/transport"
)

// App wires configuration, dependencies, and the HTTP server together.
type App struct {
	cfg       config.Config
	logger    *slog.Logger
	handler   *intercept.Handler
	settle    func(context.Context) error
	stopCache func() error
	httpSrv   *http.Server
}

// New creates a fully initialised application.
func New(cfg config.Config) (*App, error) {
	return NewWithLogger(cfg, slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(cfg config.Config, logger *slog.Logger) (*App, error) {
	storage, stopCache, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup %s store: %w", cfg.Store, err)
	}

	httpClient := transport.NewHTTPClient(cfg)

	handler, err := server.NewHandler(cfg, logger, storage, httpClient)
	if err != nil {
		_ = stopCache()
		return nil, fmt.Errorf("build handler: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(instrumentHandler(handler, logger), "proxy"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout + cfg.TransportTimeout,
		WriteTimeout:      cfg.TransportTimeout + cfg.RequestTimeout,
		IdleTimeout:       cfg.IdleConnTimeout,
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		handler:   handler,
		settle:    handler.Settle,
		stopCache: stopCache,
		httpSrv:   httpSrv,
	}, nil
}

func openStorage(cfg config.Config) (cache.Storage, func() error, error) {
	switch cfg.Store {
	case config.StoreRedis:
		s, err := redisstore.New(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreSQLite:
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreMemory:
		return memory.New(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

// Run blocks until the server shuts down or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		a.close()
		return fmt.Errorf("listen %s: %w", a.cfg.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	defer a.close()

	go func() {
		a.logger.Info("proxy server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("store", string(a.cfg.Store)),
			slog.String("cache", a.cfg.CacheName))
		err := a.httpSrv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		// Pending writes settle before storage closes, even when Shutdown times out.
		shutdownErr := a.httpSrv.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			a.logger.Warn("server shutdown incomplete", slog.String("error", shutdownErr.Error()))
		}
		if err := a.settle(shutdownCtx); err != nil {
			a.logger.Warn("pending cache writes dropped", slog.String("error", err.Error()))
		}
		return shutdownErr
	case err := <-errCh:
		return err
	}
}

func (a *App) close() {
	if a.stopCache == nil {
		return
	}
	if err := a.stopCache(); err != nil {
		a.logger.Warn("cache close failed", slog.String("error", err.Error()))
	}
	a.stopCache = nil
}

func instrumentHandler(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		logger.Debug("handled request",
			slog.String("method", r.Method),
			slog.String("url", r.URL.String()),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("duration", dur))
	})
}
