package rip_stream

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alanbriolat/rip-stream/util"
)

// SegmentRequest identifies one segment to fetch.
type SegmentRequest struct {
	Index int
	URL   string
}

type SegmentStatus int

const (
	StatusSuccess SegmentStatus = iota
	StatusNotFound
	StatusTransientError
)

func (s SegmentStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not-found"
	case StatusTransientError:
		return "transient-error"
	default:
		return fmt.Sprintf("SegmentStatus(%d)", int(s))
	}
}

// SegmentResult is the outcome of fetching a single SegmentRequest. Path is empty unless Status is StatusSuccess.
type SegmentResult struct {
	Index  int
	Path   string
	Status SegmentStatus
	Bytes  int64
	Err    error
}

func (r SegmentResult) OK() bool {
	return r.Status == StatusSuccess
}

const (
	// minIndexWidth keeps segment filenames compatible with the layout earlier versions produced ("00042.ts").
	minIndexWidth = 5
	// defaultIndexWidth is used by new sessions; names sort in index order up to 999999.
	defaultIndexWidth = 6
)

// SegmentFilename returns the on-disk name for segment index, zero-padded so that lexicographic order matches index
// order within width.
func SegmentFilename(index int, width int, ext string) string {
	if width < minIndexWidth {
		width = minIndexWidth
	}
	return fmt.Sprintf("%0*d%s", width, index, ext)
}

// parseSegmentFilename returns the index and zero-padded width of a name produced by SegmentFilename.
func parseSegmentFilename(name string, ext string) (index int, width int, ok bool) {
	stem, found := strings.CutSuffix(name, ext)
	if !found || stem == "" {
		return 0, 0, false
	}
	for _, c := range stem {
		if c < '0' || c > '9' {
			return 0, 0, false
		}
	}
	index, err := strconv.Atoi(stem)
	if err != nil {
		return 0, 0, false
	}
	return index, len(stem), true
}

func segmentPath(dir string, index int, width int, ext string) string {
	return filepath.Join(dir, SegmentFilename(index, width, ext))
}

// segmentExtension picks the file extension for a session's segments from the URL of its first segment.
func segmentExtension(t *Template, first int) string {
	return util.ExtensionFromURL(t.URL(first), DefaultSegmentExtension)
}
