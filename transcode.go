package rip_stream

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	DefaultContainer        = ".mp4"
	DefaultCodec            = "copy"
	DefaultSegmentExtension = ".ts"

	// diagnosticTail is how much of ffmpeg's stderr is kept in a TranscodeError.
	diagnosticTail = 4096
)

// A Transcoder turns an ordered list of input media files into one output file. It is a single external operation
// from the caller's point of view; callers are responsible for moving the output into its final location.
type Transcoder interface {
	Transcode(ctx context.Context, inputs []string, output string) error
}

// TranscoderFunc adapts a function to the Transcoder interface.
type TranscoderFunc func(ctx context.Context, inputs []string, output string) error

func (f TranscoderFunc) Transcode(ctx context.Context, inputs []string, output string) error {
	return f(ctx, inputs, output)
}

// FFmpegTranscoder runs ffmpeg. With the default "copy" codec streams are remuxed, not re-encoded.
type FFmpegTranscoder struct {
	// Path to the ffmpeg binary; empty means "ffmpeg" from PATH.
	Path  string
	Codec string
	// Format forces the output container format (ffmpeg -f); empty lets ffmpeg infer it from the output name.
	Format string
}

func (t *FFmpegTranscoder) binary() string {
	if t.Path == "" {
		return "ffmpeg"
	}
	return t.Path
}

// Args returns the ffmpeg arguments for a transcode, without the binary name.
func (t *FFmpegTranscoder) Args(inputs []string, output string) []string {
	input := inputs[0]
	if len(inputs) > 1 {
		input = "concat:" + strings.Join(inputs, "|")
	}
	codec := t.Codec
	if codec == "" {
		codec = DefaultCodec
	}
	// bitexact keeps repeated runs over the same input byte-identical
	outArgs := ffmpeg.KwArgs{"c": codec, "fflags": "+bitexact"}
	if t.Format != "" {
		outArgs["f"] = t.Format
	}
	return ffmpeg.Input(input).
		Output(output, outArgs).
		OverWriteOutput().
		GetArgs()
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return &TranscodeError{Output: output, Err: ErrEmptyInput}
	}
	log := Logger(ctx).Sugar().Named("ffmpeg")
	args := t.Args(inputs, output)
	log.Debugw("running ffmpeg", "path", t.binary(), "args", args)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary(), args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &TranscodeError{Output: output, Diagnostic: tail(stderr.String(), diagnosticTail), Err: err}
	}
	return nil
}

// CheckFFmpeg verifies that the ffmpeg binary can be found.
func (t *FFmpegTranscoder) CheckFFmpeg() error {
	if _, err := exec.LookPath(t.binary()); err != nil {
		return configError("ffmpeg", "%v", err)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
