package rip_stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alanbriolat/rip-stream/internal/workspace"
)

// Artifact is the final transcoded output of a session.
type Artifact struct {
	Path     string
	Size     int64
	Segments int
}

// Assembler concatenates segment files and transcodes the result into a single artifact.
type Assembler struct {
	Transcoder Transcoder
	// OutputDir receives the artifact; it defaults to the current directory.
	OutputDir string
	// Container is the artifact's file extension, including the leading dot.
	Container string
	// KeepIntermediate also moves the concatenated stream ("<name>.ts") into OutputDir.
	KeepIntermediate bool
	// OnConcat, if set, is called after each segment is appended to the intermediate file.
	OnConcat func(done int, total int)
}

func (a *Assembler) container() string {
	if a.Container == "" {
		return DefaultContainer
	}
	return a.Container
}

func (a *Assembler) outputDir() string {
	if a.OutputDir == "" {
		return "."
	}
	return a.OutputDir
}

// ArtifactPath is where Assemble will place the artifact for basename.
func (a *Assembler) ArtifactPath(basename string) string {
	return filepath.Join(a.outputDir(), basename+a.container())
}

// IntermediatePath is where the concatenated stream is kept when KeepIntermediate is set.
func (a *Assembler) IntermediatePath(basename string) string {
	return filepath.Join(a.outputDir(), basename+DefaultSegmentExtension)
}

func validateBasename(basename string) error {
	switch {
	case strings.TrimSpace(basename) == "":
		return configError("output_name", "must not be empty")
	case basename == "." || basename == "..":
		return configError("output_name", "%q is not a valid name", basename)
	case strings.ContainsAny(basename, `/\`):
		return configError("output_name", "%q must not contain a path separator", basename)
	}
	return nil
}

// Assemble joins paths in the order given and transcodes them into the artifact for basename. Nothing is written to
// the artifact path unless the transcoder succeeds.
func (a *Assembler) Assemble(ctx context.Context, paths []string, basename string) (*Artifact, error) {
	if err := validateBasename(basename); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrEmptyInput
	}
	for _, p := range paths {
		if err := checkSegmentFile(p); err != nil {
			return nil, err
		}
	}
	log := Logger(ctx).Sugar().Named("assemble").With("output_name", basename)

	intermediate := basename + DefaultSegmentExtension
	output := basename + a.container()
	artifact := &Artifact{Path: a.ArtifactPath(basename), Segments: len(paths)}

	err := workspace.With(func(w *workspace.Workspace) error {
		log.Debugw("concatenating segments", "segments", len(paths), "workspace", w.Dir())
		if err := a.concat(ctx, w, intermediate, paths); err != nil {
			return err
		}
		log.Infow("transcoding", "output", artifact.Path)
		if err := a.Transcoder.Transcode(ctx, []string{w.Path(intermediate)}, w.Path(output)); err != nil {
			var terr *TranscodeError
			if !errors.As(err, &terr) {
				err = &TranscodeError{Output: artifact.Path, Err: err}
			}
			return err
		}
		info, err := os.Stat(w.Path(output))
		if err != nil {
			return &TranscodeError{Output: artifact.Path, Err: fmt.Errorf("transcoder produced no output: %w", err)}
		}
		artifact.Size = info.Size()
		if err := w.Commit(output, artifact.Path); err != nil {
			return fmt.Errorf("failed to move artifact into place: %w", err)
		}
		if a.KeepIntermediate {
			if err := w.Commit(intermediate, a.IntermediatePath(basename)); err != nil {
				log.Warnw("failed to keep intermediate stream", "error", err)
			}
		}
		return nil
	}, workspace.WithBaseDir(a.outputDir()), workspace.WithPattern("."+basename+".tmp-*"))
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func checkSegmentFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidSegment, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidSegment, path)
	}
	return nil
}

func (a *Assembler) concat(ctx context.Context, w *workspace.Workspace, name string, paths []string) (err error) {
	out, err := w.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create intermediate file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close intermediate file: %w", cerr)
		}
	}()
	for i, p := range paths {
		if err := appendFile(ctx, out, p); err != nil {
			return err
		}
		if a.OnConcat != nil {
			a.OnConcat(i+1, len(paths))
		}
	}
	return nil
}

func appendFile(ctx context.Context, dst io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	defer src.Close()
	if _, err := io.Copy(dst, &readerContext{ctx: ctx, r: src}); err != nil {
		return fmt.Errorf("failed to append %s: %w", path, err)
	}
	return nil
}
