package interceptor

import "net/http"

// Transport is an http.RoundTripper that routes every request through an Interceptor.
type Transport struct {
	Interceptor *Interceptor
}

// RoundTrip implements http.RoundTripper. The request body is closed on every
// path, including cache hits where it is never sent.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Interceptor.Intercept(req.Context(), req)
	if req.Body != nil {
		_ = req.Body.Close()
	}
	return resp, err
}

// NewClient returns a client whose requests are answered cache-first.
func NewClient(i *Interceptor) *http.Client {
	return &http.Client{Transport: &Transport{Interceptor: i}}
}
