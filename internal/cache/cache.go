package cache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultName is the bucket every interceptor opens unless told otherwise.
const DefaultName = "nk-cache"

// Entry is a fully materialized response held by a bucket.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	Vary     map[string]string
	StoredAt time.Time
}

// Storage opens named buckets. Implementations must be safe for concurrent use.
type Storage interface {
	Open(ctx context.Context, name string) (Bucket, error)
}

// Bucket is a key-value view over one named cache.
type Bucket interface {
	// Get returns the entry stored under key. A missing key is not an error.
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
}

// Clone returns a deep copy of the entry so that the copy shares no memory with e.
func (e Entry) Clone() Entry {
	out := Entry{
		Status:   e.Status,
		Header:   e.Header.Clone(),
		Body:     bytes.Clone(e.Body),
		StoredAt: e.StoredAt,
	}
	if e.Vary != nil {
		out.Vary = make(map[string]string, len(e.Vary))
		for k, v := range e.Vary {
			out.Vary[k] = v
		}
	}
	return out
}

// Response builds a new response for req. Every call returns an independent body.
func (e Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// privateHeaders never leave the response they arrived on. A stored entry is
// replayed to every client of the cache.
var privateHeaders = []string{"Set-Cookie", "Set-Cookie2"}

// Shareable returns a copy of e without headers private to the original recipient.
func (e Entry) Shareable() Entry {
	out := e.Clone()
	for _, name := range privateHeaders {
		out.Header.Del(name)
	}
	return out
}

// MatchesVary reports whether req carries the same values for every header the entry varies on.
func (e Entry) MatchesVary(req *http.Request) bool {
	for name, want := range e.Vary {
		if req.Header.Get(name) != want {
			return false
		}
	}
	return true
}

// NewEntry captures a response whose body has already been read into body.
// The values of the request headers named by the response's Vary header are recorded.
func NewEntry(req *http.Request, resp *http.Response, body []byte) Entry {
	entry := Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     bytes.Clone(body),
		StoredAt: time.Now().UTC(),
	}

	names := varyNames(resp.Header)
	if len(names) > 0 {
		entry.Vary = make(map[string]string, len(names))
		for _, name := range names {
			entry.Vary[name] = req.Header.Get(name)
		}
	}

	return entry
}
