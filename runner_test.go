package rip_stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a Store backed by a map.
type memStore struct {
	mu      sync.Mutex
	records map[string]SessionRecord
	history []SessionStatus
}

func newMemStore() *memStore {
	return &memStore{records: map[string]SessionRecord{}}
}

func (s *memStore) GetSession(name string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[name]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *memStore) PutSession(record *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.OutputName] = *record
	s.history = append(s.history, record.Status)
	return nil
}

func (s *memStore) ListSessions() ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []SessionRecord
	for _, r := range s.records {
		records = append(records, r)
	}
	return records, nil
}

func (s *memStore) DeleteSession(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

// newStreamServer serves "/seg<n>.ts" for n < available.
func newStreamServer(t *testing.T, available int) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/seg"), ".ts")
		for _, c := range name {
			n = n*10 + int(c-'0')
		}
		if n >= available {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("seg" + name + ";"))
	}))
	t.Cleanup(server.Close)
	return server
}

func runAndCollect(t *testing.T, runner *Runner) (*Result, error, []Event) {
	sub, err := runner.Subscribe()
	require.NoError(t, err)
	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub.Receive() {
			events = append(events, e)
		}
	}()
	result, err := runner.Run(context.Background())
	runner.Close()
	<-done
	return result, err, events
}

func TestRunner(t *testing.T) {
	assert := assert_.New(t)
	server := newStreamServer(t, 3)
	store := newMemStore()

	config := DefaultConfig
	config.URLTemplate = server.URL + "/seg{}.ts"
	config.OutputName = "video"
	config.OutputDir = t.TempDir()
	runner := NewRunner(config, NewHTTPFetcher(server.Client()), copyTranscoder, store)

	result, err, events := runAndCollect(t, runner)
	require.NoError(t, err)
	assert.False(result.Skipped)
	assert.Equal(TerminationClean, result.Acquisition.Reason)
	assert.Len(result.Acquisition.Segments, 3)
	assert.Equal(filepath.Join(config.OutputDir, "video", "video.mp4"), result.Artifact.Path)

	data, err := os.ReadFile(result.Artifact.Path)
	require.NoError(t, err)
	assert.Equal("seg0;seg1;seg2;", string(data))

	var counts, concatenated []int
	var finished []SessionFinished
	for _, e := range events {
		assert.Equal(result.SessionID, e.SessionID())
		switch e := e.(type) {
		case SegmentAcquired:
			counts = append(counts, e.Count)
		case AssemblyProgress:
			assert.Equal(3, e.Total)
			concatenated = append(concatenated, e.Done)
		case SessionFinished:
			finished = append(finished, e)
		}
	}
	assert.Equal([]int{1, 2, 3}, counts)
	assert.Equal([]int{1, 2, 3}, concatenated)
	require.Len(t, finished, 1)
	assert.True(finished[0].Success)
	assert.False(finished[0].Incomplete)
	assert.Equal(result.Artifact.Path, finished[0].OutputPath)
	assert.IsType(AcquisitionStarted{}, events[0])
	assert.IsType(SessionFinished{}, events[len(events)-1])

	record, err := store.GetSession("video")
	require.NoError(t, err)
	assert.Equal(SessionStatusComplete, record.Status)
	assert.Equal(3, record.Segments)
	assert.Equal(result.Artifact.Path, record.ArtifactPath)
	assert.Equal([]SessionStatus{SessionStatusAcquiring, SessionStatusAssembling, SessionStatusComplete}, store.history)

	// A second run finds the artifact and does nothing
	result, err, events = runAndCollect(t, NewRunner(config, NewHTTPFetcher(server.Client()), copyTranscoder, store))
	require.NoError(t, err)
	assert.True(result.Skipped)
	require.Len(t, events, 1)
	assert.True(events[0].(SessionFinished).Success)
}

func TestRunner_EmptyInput(t *testing.T) {
	assert := assert_.New(t)
	server := newStreamServer(t, 0)

	config := DefaultConfig
	config.URLTemplate = server.URL + "/seg{}.ts"
	config.OutputName = "video"
	config.OutputDir = t.TempDir()
	result, err, events := runAndCollect(t, NewRunner(config, NewHTTPFetcher(server.Client()), copyTranscoder, nil))

	assert.ErrorIs(err, ErrEmptyInput)
	assert.True(IsUserError(err))
	assert.Nil(result.Artifact)
	assert.NoFileExists(filepath.Join(config.OutputDir, "video", "video.mp4"))
	finished := events[len(events)-1].(SessionFinished)
	assert.False(finished.Success)
	assert.ErrorIs(finished.Err, ErrEmptyInput)
}

func TestRunner_TransientErrorStillAssembles(t *testing.T) {
	assert := assert_.New(t)
	stream := newFakeStream(10)
	stream.failures[2] = -1

	config := DefaultConfig
	config.URLTemplate = "http://example.com/{}.ts"
	config.OutputName = "video"
	config.OutputDir = t.TempDir()
	config.Cleanup = true
	result, err, events := runAndCollect(t, NewRunner(config, stream, copyTranscoder, nil))

	require.NoError(t, err)
	assert.Equal(TerminationError, result.Acquisition.Reason)
	assert.Equal(2, result.Artifact.Segments)
	assert.NoDirExists(config.SegmentsDir())
	finished := events[len(events)-1].(SessionFinished)
	assert.True(finished.Success)
	assert.True(finished.Incomplete)
}

func TestRunner_InvalidConfig(t *testing.T) {
	assert := assert_.New(t)
	config := DefaultConfig
	config.URLTemplate = "http://example.com/no-placeholder.ts"
	config.OutputName = "video"
	config.OutputDir = t.TempDir()
	_, err, events := runAndCollect(t, NewRunner(config, newFakeStream(1), copyTranscoder, nil))
	assert.ErrorIs(err, ErrConfiguration)
	assert.NoDirExists(config.WorkDir())

	// The failure is still reported, so a notifier sees it
	require.Len(t, events, 1)
	finished := events[0].(SessionFinished)
	assert.False(finished.Success)
	assert.Equal("video", finished.Name)
	assert.ErrorIs(finished.Err, ErrConfiguration)
}

func TestRunner_Resume(t *testing.T) {
	assert := assert_.New(t)
	store := newMemStore()
	config := DefaultConfig
	config.URLTemplate = "http://example.com/{}.ts"
	config.OutputName = "video"
	config.OutputDir = t.TempDir()

	require.NoError(t, os.MkdirAll(config.SegmentsDir(), 0775))
	for _, name := range []string{"000000.ts", "000001.ts"} {
		require.NoError(t, os.WriteFile(filepath.Join(config.SegmentsDir(), name), []byte("old;"), 0644))
	}
	require.NoError(t, store.PutSession(&SessionRecord{OutputName: "video", URLTemplate: config.URLTemplate}))

	stream := newFakeStream(4)
	result, err, events := runAndCollect(t, NewRunner(config, stream, copyTranscoder, store))
	require.NoError(t, err)
	assert.Equal(0, stream.Attempts(0))
	assert.Equal(0, stream.Attempts(1))
	assert.Len(result.Acquisition.Segments, 4)
	assert.Equal(2, events[0].(AcquisitionStarted).Resumed)
	data, err := os.ReadFile(result.Artifact.Path)
	require.NoError(t, err)
	assert.Equal("old;old;segment 2;segment 3;", string(data))

	// Different template against the same directory is refused
	require.NoError(t, os.Remove(result.Artifact.Path))
	config.URLTemplate = "http://other.example.com/{}.ts"
	_, err, events = runAndCollect(t, NewRunner(config, stream, copyTranscoder, store))
	assert.ErrorIs(err, ErrConfiguration)
	require.Len(t, events, 1)
	assert.False(events[0].(SessionFinished).Success)

	config.URLTemplate = "http://example.com/{}.ts"
	config.Resume = false
	_, err = NewRunner(config, stream, copyTranscoder, store).Run(context.Background())
	assert.ErrorIs(err, ErrConfiguration)
}

func TestRunner_ResumeWithDifferentLastIndex(t *testing.T) {
	assert := assert_.New(t)
	store := newMemStore()
	config := DefaultConfig
	config.URLTemplate = "http://example.com/{}.ts"
	config.OutputName = "video"
	config.OutputDir = t.TempDir()
	config.LastIndex = 5

	// The first run is interrupted after two segments
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeStream(4)
	interrupting := FetcherFunc(func(ctx context.Context, req SegmentRequest, dest string) SegmentResult {
		r := stream.Fetch(ctx, req, dest)
		if req.Index == 1 {
			cancel()
		}
		return r
	})
	_, err := NewRunner(config, interrupting, copyTranscoder, store).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal([]string{"000000.ts", "000001.ts"}, segmentFiles(t, config.SegmentsDir()))

	// A longer bound would use wider names, but the existing segments are still reused
	for _, last := range []int{1234567, NoLastIndex} {
		config.LastIndex = last
		result, err := NewRunner(config, stream, copyTranscoder, store).Run(context.Background())
		require.NoError(t, err, "last_number %d", last)
		assert.Len(result.Acquisition.Segments, 4)
		assert.Equal(1, stream.Attempts(0))
		assert.Equal(1, stream.Attempts(1))
		assert.Equal([]string{"000000.ts", "000001.ts", "000002.ts", "000003.ts"}, segmentFiles(t, config.SegmentsDir()))
		require.NoError(t, os.Remove(result.Artifact.Path))
	}
}
