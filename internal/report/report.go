// Package report holds the evidence timeline produced for one video and
// the documents written from it.
package report

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Summary is an analyzer's per-file aggregate. Merge combines the
// summaries of consecutive chunks of one file additively.
type Summary interface {
	Merge(other Summary) Summary
}

// Item is one positive detection backed by an evidence image.
type Item struct {
	Analyzer   string  `json:"analyzer"`
	Frame      int     `json:"frame"`
	Chunk      int     `json:"chunk"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
	// Seconds is the presentation time behind Timestamp.
	Seconds float64 `json:"seconds"`
	Image   string  `json:"image"`
	Detail  any     `json:"detail,omitempty"`
}

// Report is the ordered multi-analyzer timeline of one video: items are
// sorted by frame, then by analyzer registration order.
type Report struct {
	VideoPath string             `json:"video_path"`
	Chunks    []string           `json:"chunks,omitempty"`
	Summary   map[string]Summary `json:"summary"`
	Items     []Item             `json:"items"`
	Error     string             `json:"error,omitempty"`

	// Err is the failure behind Error, kept for errors.Is checks.
	Err error `json:"-"`
}

// New returns an empty report for videoPath.
func New(videoPath string) *Report {
	return &Report{
		VideoPath: videoPath,
		Summary:   make(map[string]Summary),
		Items:     []Item{},
	}
}

// Failed returns a report recording that videoPath could not be analyzed.
func Failed(videoPath string, err error) *Report {
	r := New(videoPath)
	r.Fail(err)
	return r
}

// Add appends an item to the timeline.
func (r *Report) Add(item Item) {
	r.Items = append(r.Items, item)
}

// SetSummary records the summary of one analyzer, merging with an existing one.
func (r *Report) SetSummary(analyzer string, s Summary) {
	if s == nil {
		return
	}
	if prev, ok := r.Summary[analyzer]; ok && prev != nil {
		r.Summary[analyzer] = prev.Merge(s)
		return
	}
	r.Summary[analyzer] = s
}

// Fail records err on the report.
func (r *Report) Fail(err error) {
	if err == nil {
		return
	}
	r.Err = errors.Join(r.Err, err)
	r.Error = r.Err.Error()
}

// Count returns the number of items produced by analyzer.
func (r *Report) Count(analyzer string) int {
	n := 0
	for _, it := range r.Items {
		if it.Analyzer == analyzer {
			n++
		}
	}
	return n
}

// Analyzers returns the analyzer types with a summary, sorted.
func (r *Report) Analyzers() []string {
	return slices.Sorted(maps.Keys(r.Summary))
}

// Concat joins the reports of consecutive chunks into one report for
// videoPath. Items keep chunk order and are tagged with their chunk index;
// summaries merge additively; chunk errors are kept with their chunk.
func Concat(videoPath string, parts []*Report) *Report {
	out := New(videoPath)
	var failures []string
	for i, part := range parts {
		if part == nil {
			continue
		}
		out.Chunks = append(out.Chunks, part.VideoPath)
		for _, it := range part.Items {
			it.Chunk = i
			out.Add(it)
		}
		for _, name := range part.Analyzers() {
			out.SetSummary(name, part.Summary[name])
		}
		if part.Err != nil {
			out.Err = errors.Join(out.Err, fmt.Errorf("chunk %d: %w", i, part.Err))
			failures = append(failures, fmt.Sprintf("chunk %d: %s", i, part.Error))
		}
	}
	if len(failures) > 0 {
		out.Error = strings.Join(failures, "; ")
	}
	return out
}

// Timestamp formats seconds as MM:SS, truncated to whole seconds.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
