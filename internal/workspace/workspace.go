// Package workspace provides a private scratch directory whose results are moved into place only on success.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type config struct {
	baseDir string
	pattern string
}

type Option func(*config)

// WithBaseDir creates the workspace inside dir. Use the directory of the final output so Commit is a same-filesystem
// rename.
func WithBaseDir(dir string) Option {
	return func(c *config) {
		c.baseDir = dir
	}
}

func WithPattern(pattern string) Option {
	return func(c *config) {
		c.pattern = pattern
	}
}

type Workspace struct {
	dir string
}

func newWorkspace(c config) (*Workspace, error) {
	if c.baseDir != "" {
		if err := os.MkdirAll(c.baseDir, 0755); err != nil {
			return nil, err
		}
	}
	dir, err := os.MkdirTemp(c.baseDir, c.pattern)
	if err != nil {
		return nil, err
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) close() {
	if err := os.RemoveAll(w.dir); err != nil {
		zap.S().Named("workspace").Warnw("failed to clean up workspace", "dir", w.dir, "error", err)
	}
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *Workspace) Create(name string) (*os.File, error) {
	return os.Create(w.Path(name))
}

// Commit moves name out of the workspace to dst. It refuses to replace an existing file.
func (w *Workspace) Commit(name string, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%s: %w", dst, os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.Rename(w.Path(name), dst)
}

// With runs f in a new workspace, which is removed afterwards whatever f returns.
func With(f func(w *Workspace) error, opts ...Option) error {
	c := config{
		baseDir: os.TempDir(),
		pattern: ".rip-stream-*",
	}
	for _, opt := range opts {
		opt(&c)
	}
	w, err := newWorkspace(c)
	if err != nil {
		return err
	}
	defer w.close()
	return f(w)
}
