// Package analysis drives decoded frames through the analyzers and
// orchestrates files, folders and split videos.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rafeyhusain/ai-pose-detection/internal/analyzer"
	"github.com/rafeyhusain/ai-pose-detection/internal/ffmpeg"
	"github.com/rafeyhusain/ai-pose-detection/internal/logger"
	"github.com/rafeyhusain/ai-pose-detection/internal/metrics"
	"github.com/rafeyhusain/ai-pose-detection/internal/report"
)

// Sentinel errors for analysis runs.
// These can be checked with errors.Is().
var (
	// ErrInvalidInput means the input is neither a file nor a folder.
	ErrInvalidInput = errors.New("invalid input path")
)

// Source is a decoded frame stream.
type Source interface {
	Next() (ffmpeg.Frame, error)
	FPS() float64
	Close() error
}

// Opener opens the frame source of a video file.
type Opener func(ctx context.Context, path string) (Source, error)

// FileAnalyzer runs every frame of one video through its analyzers in
// registration order and assembles the report.
type FileAnalyzer struct {
	open      Opener
	analyzers []analyzer.Analyzer
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewFileAnalyzer creates a FileAnalyzer. m may be nil.
func NewFileAnalyzer(open Opener, analyzers []analyzer.Analyzer, m *metrics.Metrics, log *slog.Logger) *FileAnalyzer {
	return &FileAnalyzer{
		open:      open,
		analyzers: analyzers,
		metrics:   m,
		log:       logger.WithComponent(logger.OrDiscard(log), "file_analyzer"),
	}
}

// Analyze processes input. On failure the returned report holds whatever
// was collected and records the error, which is also returned.
func (f *FileAnalyzer) Analyze(ctx context.Context, input string) (rep *report.Report, err error) {
	start := time.Now()
	rep = report.New(input)
	defer func() {
		rep.Fail(err)
		f.metrics.ObserveFile(err, time.Since(start))
	}()

	for _, a := range f.analyzers {
		if err := a.Bind(input); err != nil {
			f.log.Error("Bind failed", "path", input, "analyzer", a.Type(), "error", err)
			return rep, err
		}
	}

	src, err := f.open(ctx, input)
	if err != nil {
		f.log.Error("Cannot open video", "path", input, "error", err)
		return rep, err
	}
	defer src.Close()

	trackers := make([]analyzer.Tracker, len(f.analyzers))
	for i, a := range f.analyzers {
		if t, ok := a.(analyzer.Tracking); ok {
			trackers[i] = t.NewTracker(src.FPS())
		}
	}

	f.log.Info("Analyzing video", "path", input, "fps", src.FPS(), "analyzers", len(f.analyzers))

	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return rep, cerr
			}
			f.log.Error("Decode failed", "path", input, "frame", frames, "error", err)
			return rep, err
		}
		frames++

		for i, a := range f.analyzers {
			r := f.analyzeFrame(ctx, a, frame)
			f.metrics.ObserveFrame(a.Type(), r.Status.String())
			if trackers[i] != nil {
				trackers[i].Observe(frame.Index, r)
			}
			if r.Status != analyzer.StatusSuccess {
				continue
			}

			item, err := f.saveEvidence(a, frame, r)
			if err != nil {
				f.log.Error("Evidence write failed", "path", input, "analyzer", a.Type(), "frame", frame.Index, "error", err)
				return rep, err
			}
			rep.Add(item)
		}
	}

	for i, a := range f.analyzers {
		if trackers[i] != nil {
			rep.SetSummary(a.Type(), trackers[i].Summary())
		}
	}

	counts := make([]any, 0, len(f.analyzers))
	for _, a := range f.analyzers {
		counts = append(counts, slog.Int(a.Type(), rep.Count(a.Type())))
	}
	f.log.Info("Video analyzed",
		"path", input,
		"frames", frames,
		slog.Group("items", counts...),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return rep, nil
}

// analyzeFrame calls one analyzer, turning a panic into an unknown result.
func (f *FileAnalyzer) analyzeFrame(ctx context.Context, a analyzer.Analyzer, frame ffmpeg.Frame) (r analyzer.Result) {
	defer func() {
		if p := recover(); p != nil {
			f.log.Error("Analyzer panicked", "analyzer", a.Type(), "frame", frame.Index, "panic", fmt.Sprint(p))
			r = analyzer.Result{Status: analyzer.StatusUnknown}
		}
	}()
	return a.AnalyzeFrame(ctx, frame.Index, frame.Image)
}

func (f *FileAnalyzer) saveEvidence(a analyzer.Analyzer, frame ffmpeg.Frame, r analyzer.Result) (report.Item, error) {
	timestamp := analyzer.ToTimestamp(frame.PTS)

	img := r.Evidence
	if img == nil {
		img = frame.Image
	}
	path, err := a.SaveFrame(img, timestamp)
	if err != nil {
		return report.Item{}, err
	}
	f.metrics.ObserveEvidence(a.Type())

	return report.Item{
		Analyzer:   a.Type(),
		Frame:      frame.Index,
		Confidence: r.Confidence,
		Timestamp:  timestamp,
		Seconds:    frame.PTS,
		Image:      path,
		Detail:     r.Detail,
	}, nil
}

// Close releases the adapters owned by the analyzers.
func (f *FileAnalyzer) Close() error {
	var errs []error
	for _, a := range f.analyzers {
		if c, ok := a.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
