package rip_stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/alanbriolat/rip-stream/generic"
)

// A Fetcher retrieves one segment and writes it to dest. Fetch never returns a Go error: every outcome is described
// by the SegmentResult, and a failed fetch leaves no file at dest.
type Fetcher interface {
	Fetch(ctx context.Context, req SegmentRequest, dest string) SegmentResult
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req SegmentRequest, dest string) SegmentResult

func (f FetcherFunc) Fetch(ctx context.Context, req SegmentRequest, dest string) SegmentResult {
	return f(ctx, req, dest)
}

// HTTPFetcher fetches segments with HTTP GET.
type HTTPFetcher struct {
	Client *http.Client
	// Progress, if set, is called with the number of bytes written as the body is saved.
	Progress func(n int64)
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client}
}

// notFoundStatuses are the responses that mean a segment does not exist, i.e. the stream has ended.
var notFoundStatuses = generic.NewSet(http.StatusNotFound, http.StatusGone)

func (f *HTTPFetcher) Fetch(ctx context.Context, req SegmentRequest, dest string) SegmentResult {
	result := SegmentResult{Index: req.Index}
	fail := func(status int, err error) SegmentResult {
		result.Status = StatusTransientError
		result.Err = &FetchError{Index: req.Index, URL: req.URL, StatusCode: status, Err: err}
		return result
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fail(0, fmt.Errorf("failed to create request: %w", err))
	}
	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if notFoundStatuses.Contains(resp.StatusCode) {
		result.Status = StatusNotFound
		result.Err = ErrNotFound
		return result
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}

	n, err := f.save(ctx, dest, resp.Body)
	if err == nil && resp.ContentLength >= 0 && n != resp.ContentLength {
		err = fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	if err != nil {
		_ = os.Remove(dest)
		return fail(resp.StatusCode, err)
	}
	result.Status = StatusSuccess
	result.Path = dest
	result.Bytes = n
	return result
}

func (f *HTTPFetcher) save(ctx context.Context, dest string, body io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0775); err != nil {
		return 0, fmt.Errorf("failed to create segment directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to open target file: %w", err)
	}
	counter := &progressWriter{callback: f.Progress}
	_, err = io.Copy(io.MultiWriter(out, counter), &readerContext{ctx: ctx, r: body})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return counter.n, fmt.Errorf("failed to save stream: %w", err)
	}
	return counter.n, nil
}
