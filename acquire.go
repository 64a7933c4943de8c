package rip_stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/facette/natsort"
	"go.uber.org/zap"
)

// Termination is why an acquisition loop stopped.
type Termination int

const (
	// TerminationClean means the stream ended normally: a segment was not found, or the last index was reached.
	TerminationClean Termination = iota
	// TerminationError means acquisition stopped early because of a fetch failure or interruption.
	TerminationError
)

func (t Termination) String() string {
	switch t {
	case TerminationClean:
		return "clean"
	case TerminationError:
		return "error"
	default:
		return fmt.Sprintf("Termination(%d)", int(t))
	}
}

// NoLastIndex means the stream length is unknown and only a missing segment ends it.
const NoLastIndex = -1

// Session is the state of one acquisition run. Segments is always the contiguous prefix of the index sequence
// starting at FirstIndex.
type Session struct {
	ID          string
	Template    *Template
	FirstIndex  int
	LastIndex   int
	OutputName  string
	SegmentsDir string
	// Extension of segment files, including the leading dot.
	Extension string
	// Width of the zero-padded index in segment filenames; zero derives it from LastIndex.
	Width    int
	Segments []string
}

// NextIndex is the index following the last acquired segment.
func (s *Session) NextIndex() int {
	return s.FirstIndex + len(s.Segments)
}

func (s *Session) inRange(index int) bool {
	return s.LastIndex == NoLastIndex || index <= s.LastIndex
}

func (s *Session) indexWidth() int {
	if s.Width > 0 {
		return s.Width
	}
	if s.LastIndex == NoLastIndex {
		return defaultIndexWidth
	}
	return max(defaultIndexWidth, len(strconv.Itoa(s.LastIndex)))
}

// SegmentPath is where the segment for index is stored.
func (s *Session) SegmentPath(index int) string {
	ext := s.Extension
	if ext == "" {
		ext = DefaultSegmentExtension
	}
	return segmentPath(s.SegmentsDir, index, s.indexWidth(), ext)
}

// Acquisition is the result of Acquirer.Acquire.
type Acquisition struct {
	Segments []string
	Reason   Termination
	// Err explains a TerminationError: a *FetchError, or a context error on interruption.
	Err error
	// Bytes fetched during this run (excluding resumed segments).
	Bytes int64
}

// Interrupted returns true if acquisition stopped because the context was cancelled.
func (a *Acquisition) Interrupted() bool {
	return a.Reason == TerminationError && (errors.Is(a.Err, context.Canceled) || errors.Is(a.Err, context.DeadlineExceeded))
}

// Acquirer drives a Fetcher over a Session's enumerated URLs, stopping at the first segment that is not fetched.
type Acquirer struct {
	Fetcher Fetcher
	// Concurrency is the number of segments fetched ahead at once; values below 2 fetch sequentially.
	Concurrency int
	// Retries is the number of extra attempts for a transient failure. Not-found is never retried.
	Retries    int
	RetryDelay time.Duration
	// OnSegment is called in index order for each segment appended to the session.
	OnSegment func(result SegmentResult, count int)
}

// Acquire fetches segments starting at s.NextIndex() and appends them to s.Segments. Fetch failures never escape as
// errors; they end the loop and are reported through the returned Acquisition.
func (a *Acquirer) Acquire(ctx context.Context, s *Session) *Acquisition {
	log := Logger(ctx).Sugar().Named("acquire").With("session_id", s.ID)
	acq := &Acquisition{}
	enum := s.Template.Enumerate(s.NextIndex())
	if a.Concurrency > 1 {
		a.acquireConcurrent(ctx, s, enum, acq, log)
	} else {
		a.acquireSequential(ctx, s, enum, acq, log)
	}
	acq.Segments = append([]string(nil), s.Segments...)
	log.Debugw("acquisition finished", "segments", len(acq.Segments), "reason", acq.Reason, "error", acq.Err)
	return acq
}

func (a *Acquirer) acquireSequential(ctx context.Context, s *Session, enum *Enumerator, acq *Acquisition, log *zap.SugaredLogger) {
	for {
		if !s.inRange(enum.Peek()) {
			acq.Reason = TerminationClean
			return
		}
		if err := ctx.Err(); err != nil {
			acq.Reason = TerminationError
			acq.Err = fmt.Errorf("acquisition interrupted: %w", err)
			return
		}
		req := enum.Next()
		r := a.fetch(ctx, req, s.SegmentPath(req.Index), log)
		if !a.apply(ctx, s, r, acq) {
			return
		}
	}
}

// acquireConcurrent fetches up to a.Concurrency segments ahead of the first missing one, buffering results so that the
// termination rule is still applied in strict index order.
func (a *Acquirer) acquireConcurrent(parent context.Context, s *Session, enum *Enumerator, acq *Acquisition, log *zap.SugaredLogger) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make(chan SegmentResult)
	pending := make(map[int]SegmentResult)
	next := enum.Peek()
	inflight := 0
	stopped := false

	for {
		for !stopped && enum.Peek()-next < a.Concurrency && s.inRange(enum.Peek()) && ctx.Err() == nil {
			req := enum.Next()
			inflight++
			go func() {
				results <- a.fetch(ctx, req, s.SegmentPath(req.Index), log)
			}()
		}
		if inflight == 0 {
			break
		}
		r := <-results
		inflight--
		if stopped {
			discardSegment(r, log)
			continue
		}
		pending[r.Index] = r
		for {
			head, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if !a.apply(parent, s, head, acq) {
				stopped = true
				cancel()
				break
			}
			next++
		}
		if stopped {
			for _, p := range pending {
				discardSegment(p, log)
			}
			pending = nil
		}
	}
	if !stopped {
		if err := parent.Err(); err != nil {
			acq.Reason = TerminationError
			acq.Err = fmt.Errorf("acquisition interrupted: %w", err)
		} else {
			acq.Reason = TerminationClean
		}
	}
}

// apply records one in-order result, returning false if it terminates the loop.
func (a *Acquirer) apply(ctx context.Context, s *Session, r SegmentResult, acq *Acquisition) bool {
	switch r.Status {
	case StatusSuccess:
		s.Segments = append(s.Segments, r.Path)
		acq.Bytes += r.Bytes
		if a.OnSegment != nil {
			a.OnSegment(r, len(s.Segments))
		}
		return true
	case StatusNotFound:
		acq.Reason = TerminationClean
		return false
	default:
		acq.Reason = TerminationError
		if err := ctx.Err(); err != nil {
			acq.Err = fmt.Errorf("acquisition interrupted: %w", err)
		} else {
			acq.Err = r.Err
		}
		return false
	}
}

func (a *Acquirer) fetch(ctx context.Context, req SegmentRequest, dest string, log *zap.SugaredLogger) SegmentResult {
	for attempt := 0; ; attempt++ {
		r := a.Fetcher.Fetch(ctx, req, dest)
		if r.Status != StatusTransientError || attempt >= a.Retries || ctx.Err() != nil {
			return r
		}
		log.Warnw("retrying segment", "index", req.Index, "attempt", attempt+1, "error", r.Err)
		select {
		case <-time.After(a.RetryDelay):
		case <-ctx.Done():
			return r
		}
	}
}

// discardSegment removes a segment fetched beyond the point where the stream ended.
func discardSegment(r SegmentResult, log *zap.SugaredLogger) {
	if !r.OK() || r.Path == "" {
		return
	}
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnw("failed to remove segment past end of stream", "path", r.Path, "error", err)
	}
}

// ExistingSegments lists segment files already in the session's directory, for resuming. Files are ordered naturally
// by name and must form a contiguous index sequence starting at FirstIndex. The returned width is the zero-padding
// the files were written with, which need not match the session's current LastIndex.
func ExistingSegments(s *Session) (paths []string, width int, err error) {
	entries, err := os.ReadDir(s.SegmentsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	} else if err != nil {
		return nil, 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == s.Extension {
			names = append(names, e.Name())
		}
	}
	natsort.Sort(names)
	for i, name := range names {
		index, w, ok := parseSegmentFilename(name, s.Extension)
		if !ok {
			return nil, 0, fmt.Errorf("unexpected file %s in %s", name, s.SegmentsDir)
		}
		if i == 0 {
			width = w
		}
		want := SegmentFilename(s.FirstIndex+i, width, s.Extension)
		if index != s.FirstIndex+i || name != want {
			return nil, 0, fmt.Errorf("existing segments in %s are not contiguous from %d: expected %s, found %s", s.SegmentsDir, s.FirstIndex, want, name)
		}
		paths = append(paths, filepath.Join(s.SegmentsDir, name))
	}
	return paths, width, nil
}
