// Package analyzer implements the per-frame behavioral analyzers and the
// trackers that fold their results into per-file summaries.
package analyzer

import (
	"context"
	"image"

	"github.com/rafeyhusain/ai-pose-detection/internal/report"
)

// Status is the outcome of evaluating one frame.
type Status int

const (
	// StatusUnknown means the frame was evaluated and nothing was found.
	StatusUnknown Status = iota
	// StatusSuccess means a positive detection.
	StatusSuccess
	// StatusSkipped means the frame was intentionally not evaluated.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is emitted once per frame per analyzer.
type Result struct {
	Status     Status
	Confidence float64
	// Detail is analyzer specific and ends up in the report item.
	Detail any
	// Evidence, when set, is saved instead of the raw frame.
	Evidence image.Image
}

// Analyzer is a pluggable per-frame behavioral analyzer.
type Analyzer interface {
	// Type names the analyzer's output folder and summary key.
	Type() string
	// Bind targets input, resets per-file state and recreates the output folder.
	Bind(input string) error
	// AnalyzeFrame evaluates one frame. It never fails for "no detection".
	AnalyzeFrame(ctx context.Context, index int, frame image.Image) Result
	// SaveFrame writes an evidence image and returns its path.
	SaveFrame(img image.Image, timestamp string) (string, error)
}

// Tracker folds the results of one file into a summary.
type Tracker interface {
	Observe(index int, r Result)
	Summary() report.Summary
}

// Tracking is implemented by analyzers that keep run-level state.
type Tracking interface {
	NewTracker(fps float64) Tracker
}

// Evaluated reports whether frame index is evaluated at the given stride.
// A stride of 0 or 1 evaluates every frame.
func Evaluated(index, stride int) bool {
	return stride <= 1 || index%stride == 0
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
