package rip_stream

import (
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
)

// RawVideosDirName is the directory, inside a session's working directory, that holds downloaded segments.
const RawVideosDirName = "raw-ts-videos"

// Config holds everything needed to run one session, whatever frontend supplied it.
type Config struct {
	URLTemplate string
	FirstIndex  int
	// LastIndex is the inclusive upper bound, or NoLastIndex to continue until a segment is not found.
	LastIndex  int
	OutputName string
	// OutputDir is the parent of the per-session working directory "<OutputDir>/<OutputName>".
	OutputDir string

	Concurrency int
	Retries     int
	RetryDelay  time.Duration

	Container        string
	KeepIntermediate bool
	// Cleanup removes downloaded segments after the artifact is written.
	Cleanup bool
	// Resume continues from segments left by an earlier run instead of failing.
	Resume bool
}

var DefaultConfig = Config{
	FirstIndex:  0,
	LastIndex:   NoLastIndex,
	OutputDir:   ".",
	Concurrency: 1,
	Retries:     0,
	RetryDelay:  2 * time.Second,
	Container:   DefaultContainer,
	Resume:      true,
}

// WorkDir is the per-session directory containing segments and the artifact.
func (c *Config) WorkDir() string {
	return filepath.Join(c.OutputDir, c.OutputName)
}

func (c *Config) SegmentsDir() string {
	return filepath.Join(c.WorkDir(), RawVideosDirName)
}

// Validate checks every field, returning all problems found. Each is a *ConfigurationError.
func (c *Config) Validate() error {
	var result *multierror.Error
	if _, err := ParseTemplate(c.URLTemplate); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateBasename(c.OutputName); err != nil {
		result = multierror.Append(result, err)
	}
	if c.FirstIndex < 0 {
		result = multierror.Append(result, configError("first_number", "must be non-negative, got %d", c.FirstIndex))
	}
	if c.LastIndex != NoLastIndex && c.LastIndex < c.FirstIndex {
		result = multierror.Append(result, configError("last_number", "%d is before first_number %d", c.LastIndex, c.FirstIndex))
	}
	if c.Concurrency < 0 {
		result = multierror.Append(result, configError("concurrency", "must not be negative"))
	}
	if c.Retries < 0 {
		result = multierror.Append(result, configError("retries", "must not be negative"))
	}
	if c.RetryDelay < 0 {
		result = multierror.Append(result, configError("retry_delay", "must not be negative"))
	}
	if c.Container != "" && (filepath.Ext(c.Container) != c.Container || c.Container == ".") {
		result = multierror.Append(result, configError("container", "%q should be an extension like \".mp4\"", c.Container))
	}
	return result.ErrorOrNil()
}
