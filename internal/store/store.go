// Package store keeps the history of analysis runs in SQLite.
package store

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rafeyhusain/ai-pose-detection/internal/report"
)

// Store defines the persistence interface for run history.
// Implementations must be safe for concurrent use.
type Store interface {
	// RecordRun persists a finished run together with its file reports and
	// evidence items in a single transaction.
	RecordRun(run *Run, files []*File) error

	// ListRuns returns the most recent runs, newest first. A limit of 0 or
	// less returns every run.
	ListRuns(limit int) ([]*Run, error)

	// GetRun retrieves a run with its files and items. Returns nil if not found.
	GetRun(id string) (*RunDetail, error)

	// Close closes the store and releases resources.
	Close() error
}

// Run is one invocation of the analysis manager.
type Run struct {
	ID         string        `json:"id"`
	Input      string        `json:"input"`
	Output     string        `json:"output"`
	Batch      bool          `json:"batch"`
	Files      int           `json:"files"`
	Failed     int           `json:"failed"`
	Items      int           `json:"items"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

// NewRun starts a run record for input with a fresh ID.
func NewRun(input, output string, batch bool) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Input:     input,
		Output:    output,
		Batch:     batch,
		StartedAt: time.Now(),
	}
}

// Finish stamps the run's end time and elapsed wall time.
func (r *Run) Finish() {
	r.FinishedAt = time.Now()
	r.Elapsed = r.FinishedAt.Sub(r.StartedAt)
}

// File is the stored outcome of one video of a run.
type File struct {
	VideoPath string `json:"video_path"`
	Chunks    int    `json:"chunks"`
	Error     string `json:"error,omitempty"`
	// Summary is the JSON encoding of the per-analyzer summaries.
	Summary string `json:"summary"`
	Items   []Item `json:"items"`
}

// FileFromReport converts an analysis report into its stored form.
func FileFromReport(rep *report.Report) (*File, error) {
	summary, err := json.Marshal(rep.Summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary of %s: %w", rep.VideoPath, err)
	}

	f := &File{
		VideoPath: rep.VideoPath,
		Chunks:    len(rep.Chunks),
		Error:     rep.Error,
		Summary:   string(summary),
		Items:     make([]Item, 0, len(rep.Items)),
	}
	for _, it := range rep.Items {
		f.Items = append(f.Items, Item{
			Analyzer:   it.Analyzer,
			Frame:      it.Frame,
			Chunk:      it.Chunk,
			Confidence: it.Confidence,
			Timestamp:  it.Timestamp,
			Image:      it.Image,
		})
	}
	return f, nil
}

// Item is one stored evidence item.
type Item struct {
	Analyzer   string  `json:"analyzer"`
	Frame      int     `json:"frame"`
	Chunk      int     `json:"chunk"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
	Image      string  `json:"image"`
}

// RunDetail is a run with its files.
type RunDetail struct {
	Run   *Run    `json:"run"`
	Files []*File `json:"files"`
}
