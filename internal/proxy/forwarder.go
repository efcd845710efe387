package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Forwarder performs the network side of an interception.
type Forwarder struct {
	Client         *http.Client
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

var errNilClient = errors.New("forwarder client is nil")

// Fetch sends req to the network. The request timeout covers reading the body too,
// and is released when the caller closes the body.
func (f *Forwarder) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if f.Client == nil {
		return nil, errNilClient
	}

	if f.Logger != nil {
		f.Logger.Debug("fetching from network", slog.String("method", req.Method), slog.String("url", req.URL.String()))
	}

	cancel := context.CancelFunc(func() {})
	if f.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.RequestTimeout)
	}

	resp, err := f.Client.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Outbound builds the request sent upstream on behalf of the inbound request r.
func Outbound(ctx context.Context, r *http.Request, target *url.URL) (*http.Request, error) {
	var body io.ReadCloser
	if r.Body != nil && r.Body != http.NoBody {
		body = r.Body
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	copyHeaders(upstreamReq.Header, r.Header)
	for _, h := range hopHeaders {
		upstreamReq.Header.Del(h)
	}

	setForwardedHeaders(upstreamReq.Header, r)

	upstreamReq.ContentLength = r.ContentLength
	upstreamReq.TransferEncoding = r.TransferEncoding
	upstreamReq.Trailer = cloneHeader(r.Trailer)
	upstreamReq.Host = target.Host

	return upstreamReq, nil
}

// WriteResponse streams resp to w without hop-by-hop headers. It closes resp.Body.
func WriteResponse(w http.ResponseWriter, resp *http.Response) error {
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}
	w.WriteHeader(resp.StatusCode)

	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(w, resp.Body, buf); err != nil {
		return err
	}

	return nil
}

func setForwardedHeaders(header http.Header, r *http.Request) {
	clientIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		clientIP = r.RemoteAddr
	}

	if clientIP != "" {
		prior := header.Get("X-Forwarded-For")
		if prior == "" {
			header.Set("X-Forwarded-For", clientIP)
		} else {
			header.Set("X-Forwarded-For", strings.Join([]string{prior, clientIP}, ", "))
		}
	}

	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "" {
		header.Set("X-Forwarded-Proto", schemeFromRequest(r))
	}

	header.Set("X-Forwarded-Host", r.Host)
}

func schemeFromRequest(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	if r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	return "http"
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func cloneHeader(src http.Header) http.Header {
	if len(src) == 0 {
		return nil
	}

	dst := make(http.Header, len(src))
	for k, vv := range src {
		cv := make([]string, len(vv))
		copy(cv, vv)
		dst[k] = cv
	}
	return dst
}
