package cache

import (
	"errors"
	"net/http"
	"net/textproto"
	"strings"
)

var (
	ErrUnsupportedMethod = errors.New("cache: only GET requests can be stored")
	ErrPartialContent    = errors.New("cache: partial content responses cannot be stored")
	ErrVaryWildcard      = errors.New("cache: responses with Vary: * cannot be stored")
	errRelativeURL       = errors.New("cache: request URL is not absolute")
)

// Identity returns the key a request is stored and matched under.
// The fragment never takes part in the identity.
func Identity(req *http.Request) (string, error) {
	if req == nil || req.URL == nil {
		return "", errRelativeURL
	}

	u := *req.URL
	if !u.IsAbs() {
		if req.Host == "" {
			return "", errRelativeURL
		}
		u.Scheme = "http"
		if req.TLS != nil {
			u.Scheme = "https"
		}
		u.Host = req.Host
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	return methodOf(req) + " " + u.String(), nil
}

func methodOf(req *http.Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}

func varyNames(h http.Header) []string {
	var names []string
	for _, line := range h.Values("Vary") {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if part == "*" {
				return []string{"*"}
			}
			names = append(names, textproto.CanonicalMIMEHeaderKey(part))
		}
	}
	return names
}
