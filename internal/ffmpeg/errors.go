package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for video handling.
// These can be checked with errors.Is().
var (
	// ErrVideoOpen means a source could not be opened: missing file,
	// corrupt container, unsupported codec or unavailable camera.
	ErrVideoOpen = errors.New("cannot open video")

	// ErrDecode means the decoder failed after the source was opened.
	ErrDecode = errors.New("video decode failed")

	// ErrSegmentation means the external segmenting tool failed.
	ErrSegmentation = errors.New("video segmentation failed")
)

// videoOpenError returns a wrapped error for a source that could not be opened.
func videoOpenError(path string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrVideoOpen, path, cause)
}

// SegmentError represents a segmentation failure with the tool's stderr tail.
type SegmentError struct {
	Path   string
	Err    error
	Stderr string
}

func (e *SegmentError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %s: %v", ErrSegmentation, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v (%s)", ErrSegmentation, e.Path, e.Err, e.Stderr)
}

func (e *SegmentError) Unwrap() []error {
	return []error{ErrSegmentation, e.Err}
}

// lastLines returns the last n non-empty lines from output
func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
