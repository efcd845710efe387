package intercept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/NoahCxrest/nk-cache-proxy/internal/interceptor"
	"github.com/NoahCxrest/nk-cache-proxy/internal/proxy"
	"github.com/NoahCxrest/nk-cache-proxy/internal/upstream"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

var (
	errRelativeURL = errors.New("direct target requires an absolute request URL")
	errConnect     = errors.New("CONNECT tunnels cannot be intercepted")
)

// Handler puts every inbound request through the cache-first interceptor.
type Handler struct {
	logger      *slog.Logger
	interceptor *interceptor.Interceptor
	pool        *upstream.Pool
}

// New constructs an intercepting handler over the given targets.
func New(logger *slog.Logger, ic *interceptor.Interceptor, targets []string) (*Handler, error) {
	parsed, err := upstream.ParseTargets(targets)
	if err != nil {
		return nil, err
	}

	return &Handler{
		logger:      logger.With(slog.String("component", "intercept-handler")),
		interceptor: ic,
		pool:        upstream.NewPool(parsed),
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		h.respondError(w, http.StatusMethodNotAllowed, errConnect)
		return
	}

	target, err := h.outboundURL(r)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, errRelativeURL) {
			status = http.StatusBadRequest
		}
		h.respondError(w, status, err)
		return
	}

	out, err := proxy.Outbound(r.Context(), r, target)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, err)
		return
	}

	resp, err := h.interceptor.Intercept(r.Context(), out)
	if err != nil {
		h.logger.Error("interception failed", slog.String("method", r.Method), slog.String("url", target.String()), slog.String("error", err.Error()))
		h.respondError(w, http.StatusBadGateway, err)
		return
	}

	if err := proxy.WriteResponse(w, resp); err != nil {
		h.logger.Warn("write response failed", slog.String("url", target.String()), slog.String("error", err.Error()))
	}
}

// Settle waits for background cache writes started by this handler.
func (h *Handler) Settle(ctx context.Context) error {
	return h.interceptor.Settle(ctx)
}

func (h *Handler) outboundURL(r *http.Request) (*url.URL, error) {
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}

	target, err := h.pool.Pick(key)
	if err != nil {
		return nil, err
	}

	switch target.Kind {
	case upstream.TargetDirect:
		if !r.URL.IsAbs() {
			return nil, errRelativeURL
		}
		u := *r.URL
		u.Fragment = ""
		u.RawFragment = ""
		return &u, nil
	case upstream.TargetOrigin:
		return target.Resolve(r.URL.Path, r.URL.RawQuery), nil
	default:
		return nil, upstream.ErrNoTarget
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":"%s"}`, sanitizeError(err))
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return strings.ReplaceAll(err.Error(), "\"", "'")
}
