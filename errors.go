package rip_stream

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrNotFound marks the expected end of a segment stream; it is not a failure.
	ErrNotFound = errors.New("segment not found")
	// ErrEmptyInput means there were no segments to assemble.
	ErrEmptyInput = errors.New("no segments to assemble")
	// ErrInvalidSegment means a segment file is missing or empty.
	ErrInvalidSegment = errors.New("invalid segment file")
)

// ConfigurationError describes a problem found before any network activity.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configError(field string, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FetchError is a transient failure while fetching one segment (network, I/O, unexpected status).
type FetchError struct {
	Index      int
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch segment %d (%s): HTTP %d: %v", e.Index, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch segment %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TranscodeError wraps a failure of the external transcoder, including its diagnostic output.
type TranscodeError struct {
	Output     string
	Diagnostic string
	Err        error
}

func (e *TranscodeError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("transcode %s: %v", e.Output, e.Err)
	}
	return fmt.Sprintf("transcode %s: %v\n%s", e.Output, e.Err, e.Diagnostic)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// IsTranscodeError returns true if err is (or wraps) a *TranscodeError.
func IsTranscodeError(err error) bool {
	var e *TranscodeError
	return errors.As(err, &e)
}
