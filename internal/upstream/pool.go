package upstream

import (
	"net/url"

	"github.com/NoahCxrest/nk-cache-proxy/internal/util"
)

// Target represents a single upstream endpoint.
type Target struct {
	Kind TargetKind
	base *url.URL
}

// URL returns a cloned url.URL for safe mutation by callers. Direct targets have no base.
func (t Target) URL() *url.URL {
	if t.base == nil {
		return nil
	}
	clone := *t.base
	return &clone
}

// Resolve returns a fully-qualified URL assembled from the upstream base, path, and query string.
func (t Target) Resolve(path, rawQuery string) *url.URL {
	u := t.URL()
	if u == nil {
		return nil
	}
	u.Path = joinURLPath(u.Path, path)
	u.RawPath = ""
	u.RawQuery = rawQuery
	return u
}

// Pool selects targets consistently by request key, so one resource always
// goes to the same upstream.
type Pool struct {
	targets []Target
}

// NewPool constructs a pool from parsed targets.
func NewPool(targets []Target) *Pool {
	return &Pool{targets: append([]Target(nil), targets...)}
}

// Pick returns the target assigned to key.
func (p *Pool) Pick(key string) (Target, error) {
	if len(p.targets) == 0 {
		return Target{}, ErrNoTarget
	}
	return p.targets[util.ConsistentIndex(key, len(p.targets))], nil
}

// Len reports how many upstream targets are available.
func (p *Pool) Len() int {
	return len(p.targets)
}

func joinURLPath(basePath, reqPath string) string {
	switch {
	case basePath == "":
		if reqPath == "" {
			return "/"
		}
		return ensureLeadingSlash(reqPath)
	case reqPath == "":
		return ensureLeadingSlash(basePath)
	default:
		b := ensureLeadingSlash(basePath)
		r := ensureLeadingSlash(reqPath)
		if b[len(b)-1] == '/' {
			return b + r[1:]
		}
		return b + r
	}
}

func ensureLeadingSlash(path string) string {
	if path == "" {
		return "/"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
