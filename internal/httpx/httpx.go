// Package httpx builds the HTTP client used to fetch segments.
package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultUserAgent = "rip-stream/1.0"
)

// HeaderTransport sets fixed headers on every request before handing it to Base.
type HeaderTransport struct {
	Headers http.Header
	Base    http.RoundTripper
}

func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if len(t.Headers) == 0 {
		return base.RoundTrip(req)
	}
	// Clone so the caller's request is never modified.
	r := req.Clone(req.Context())
	for k, vs := range t.Headers {
		r.Header.Del(k)
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	return base.RoundTrip(r)
}

type Options struct {
	// Timeout for a whole request including reading the body; zero means DefaultTimeout, negative means none.
	Timeout   time.Duration
	UserAgent string
	Headers   http.Header
}

// NewClient returns a client that applies the configured headers and timeout to every request.
func NewClient(opts Options) *http.Client {
	headers := opts.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	if headers.Get("User-Agent") == "" {
		ua := opts.UserAgent
		if ua == "" {
			ua = DefaultUserAgent
		}
		headers.Set("User-Agent", ua)
	}
	timeout := opts.Timeout
	switch {
	case timeout == 0:
		timeout = DefaultTimeout
	case timeout < 0:
		timeout = 0
	}
	return &http.Client{
		Transport: &HeaderTransport{Headers: headers, Base: http.DefaultTransport},
		Timeout:   timeout,
	}
}

// ParseHeaders parses "Name: value" lines as given on the command line.
func ParseHeaders(lines []string) (http.Header, error) {
	headers := make(http.Header)
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", line)
		}
		headers.Add(name, strings.TrimSpace(value))
	}
	return headers, nil
}
