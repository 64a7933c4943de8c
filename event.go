package rip_stream

// Event is published by a Runner while a session progresses. Observers type-switch on the concrete types.
type Event interface {
	// SessionID of the session this event relates to.
	SessionID() string
}

type sessionEvent struct {
	ID string
}

func (e sessionEvent) SessionID() string {
	return e.ID
}

// AcquisitionStarted is sent once, before the first fetch.
type AcquisitionStarted struct {
	sessionEvent
	FirstIndex int
	// Resumed is the number of segments already present from an earlier run.
	Resumed int
}

// SegmentAcquired is sent after each segment is appended; Count increases by one each time.
type SegmentAcquired struct {
	sessionEvent
	Index int
	Count int
	Path  string
	Bytes int64
}

// AcquisitionFinished is sent when the acquisition loop reaches a terminal state.
type AcquisitionFinished struct {
	sessionEvent
	Count  int
	Reason Termination
	Err    error
}

// AssemblyStarted is sent before concatenation and transcoding begin.
type AssemblyStarted struct {
	sessionEvent
	Segments int
}

// AssemblyProgress is sent as each segment is appended to the intermediate stream.
type AssemblyProgress struct {
	sessionEvent
	Done  int
	Total int
}

// SessionFinished is the single completion event for a session, sent whether it succeeded, failed or was skipped.
type SessionFinished struct {
	sessionEvent
	Name       string
	Success    bool
	OutputPath string
	// Incomplete is set when an artifact was produced but acquisition ended on an error.
	Incomplete bool
	Err        error
}
