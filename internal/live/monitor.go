// Package live watches a camera feed and reports look-away and
// multiple-face events as they happen.
package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"

	"github.com/rafeyhusain/ai-pose-detection/internal/analysis"
	"github.com/rafeyhusain/ai-pose-detection/internal/analyzer"
	"github.com/rafeyhusain/ai-pose-detection/internal/logger"
	"github.com/rafeyhusain/ai-pose-detection/internal/report"
)

// EventKind names a state change of the monitored person.
type EventKind string

const (
	LookAwayStarted EventKind = "look_away_started"
	LookAwayEnded   EventKind = "look_away_ended"
	MultipleFaces   EventKind = "multiple_faces"
	SingleFace      EventKind = "single_face"
)

// Event is emitted on every state change.
type Event struct {
	Kind    EventKind `json:"kind"`
	Frame   int       `json:"frame"`
	Seconds float64   `json:"seconds"`
	Faces   int       `json:"faces,omitempty"`
	// Duration is set on LookAwayEnded, in seconds.
	Duration float64 `json:"duration,omitempty"`
}

// Opener opens the camera.
type Opener func(ctx context.Context) (analysis.Source, error)

// Monitor runs one analyzer over a camera feed until it is cancelled.
type Monitor struct {
	open     Opener
	analyzer analyzer.Analyzer
	onEvent  func(Event)
	log      *slog.Logger

	away      bool
	awayStart float64
	multi     bool
}

// NewMonitor creates a Monitor. onEvent may be nil; events are logged either way.
func NewMonitor(open Opener, a analyzer.Analyzer, onEvent func(Event), log *slog.Logger) *Monitor {
	return &Monitor{
		open:     open,
		analyzer: a,
		onEvent:  onEvent,
		log:      logger.WithComponent(logger.OrDiscard(log), "live"),
	}
}

// Run reads frames until ctx is cancelled or the feed ends and returns the
// summary of the session. Cancellation is a normal stop.
func (m *Monitor) Run(ctx context.Context) (report.Summary, error) {
	src, err := m.open(ctx)
	if err != nil {
		m.log.Error("Cannot open camera", "error", err)
		return nil, err
	}
	defer src.Close()

	var tracker analyzer.Tracker
	if t, ok := m.analyzer.(analyzer.Tracking); ok {
		tracker = t.NewTracker(src.FPS())
	}
	summary := func() report.Summary {
		if tracker == nil {
			return nil
		}
		return tracker.Summary()
	}

	m.log.Info("Live monitoring started", "analyzer", m.analyzer.Type(), "fps", src.FPS())
	for {
		if ctx.Err() != nil {
			break
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			m.log.Info("Camera feed ended")
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			m.log.Error("Camera read failed", "frame", frame.Index, "error", err)
			return summary(), err
		}

		r := m.analyzer.AnalyzeFrame(ctx, frame.Index, frame.Image)
		if tracker != nil {
			tracker.Observe(frame.Index, r)
		}
		if r.Status != analyzer.StatusSkipped {
			m.observe(frame.Index, frame.PTS, r)
		}
	}

	m.log.Info("Live monitoring stopped")
	return summary(), nil
}

func (m *Monitor) observe(index int, seconds float64, r analyzer.Result) {
	away := r.Status == analyzer.StatusSuccess
	switch {
	case away && !m.away:
		m.away, m.awayStart = true, seconds
		m.emit(Event{Kind: LookAwayStarted, Frame: index, Seconds: seconds})
	case !away && m.away:
		m.away = false
		d := math.Round((seconds-m.awayStart)*100) / 100
		m.emit(Event{Kind: LookAwayEnded, Frame: index, Seconds: seconds, Duration: d})
	}

	// Without a detail the frame says nothing about the face count
	d, ok := r.Detail.(analyzer.HeadDetail)
	if !ok {
		return
	}
	multi := d.Faces > 1
	switch {
	case multi && !m.multi:
		m.emit(Event{Kind: MultipleFaces, Frame: index, Seconds: seconds, Faces: d.Faces})
	case !multi && m.multi:
		m.emit(Event{Kind: SingleFace, Frame: index, Seconds: seconds, Faces: d.Faces})
	}
	m.multi = multi
}

func (m *Monitor) emit(e Event) {
	switch e.Kind {
	case LookAwayStarted, MultipleFaces:
		m.log.Warn("Live event", "kind", e.Kind, "frame", e.Frame, "at", report.Timestamp(e.Seconds), "faces", e.Faces)
	default:
		m.log.Info("Live event", "kind", e.Kind, "frame", e.Frame, "at", report.Timestamp(e.Seconds), "duration", e.Duration)
	}
	if m.onEvent != nil {
		m.onEvent(e)
	}
}
