package analyzer

import (
	"github.com/rafeyhusain/ai-pose-detection/internal/report"
)

// HeadSummary aggregates the look-away behavior of one file.
type HeadSummary struct {
	Detected bool `json:"detected"`
	// Confidence is the mean confidence of positive frames.
	Confidence          float64 `json:"confidence"`
	Detections          int     `json:"detections"`
	EvaluatedFrames     int     `json:"evaluated_frames"`
	Events              int     `json:"look_away_events"`
	TotalDuration       float64 `json:"total_look_away_duration"`
	LongestDuration     float64 `json:"longest_look_away_duration"`
	SustainedEvents     int     `json:"sustained_events"`
	MultipleFacesFrames int     `json:"multiple_faces_frames"`
}

// Merge adds the summary of a following chunk.
func (s HeadSummary) Merge(other report.Summary) report.Summary {
	o, ok := other.(HeadSummary)
	if !ok {
		return s
	}
	out := HeadSummary{
		Detected:            s.Detected || o.Detected,
		Detections:          s.Detections + o.Detections,
		EvaluatedFrames:     s.EvaluatedFrames + o.EvaluatedFrames,
		Events:              s.Events + o.Events,
		TotalDuration:       round2(s.TotalDuration + o.TotalDuration),
		LongestDuration:     max(s.LongestDuration, o.LongestDuration),
		SustainedEvents:     s.SustainedEvents + o.SustainedEvents,
		MultipleFacesFrames: s.MultipleFacesFrames + o.MultipleFacesFrames,
	}
	if out.Detections > 0 {
		out.Confidence = (s.Confidence*float64(s.Detections) + o.Confidence*float64(o.Detections)) / float64(out.Detections)
	}
	return out
}

// LookAwayTracker is the per-file look-away interval state machine. It is
// Watching until the first away frame, then LookingAway from that frame
// until the next evaluated frame that is not away, which closes the
// interval. Skipped frames never change state; an interval still open at
// the end of the file is not counted.
type LookAwayTracker struct {
	fps         float64
	minDuration float64

	lookingAway bool
	start       int

	durations  []float64
	detections int
	confSum    float64
	evaluated  int
	multiFaces int
}

// NewLookAwayTracker returns a tracker for a file decoded at fps. Closed
// intervals of at least minDuration seconds count as sustained.
func NewLookAwayTracker(fps, minDuration float64) *LookAwayTracker {
	if fps <= 0 {
		fps = 30
	}
	return &LookAwayTracker{fps: fps, minDuration: minDuration}
}

// Observe feeds the result of frame index.
func (t *LookAwayTracker) Observe(index int, r Result) {
	if r.Status == StatusSkipped {
		return
	}
	t.evaluated++
	if d, ok := r.Detail.(HeadDetail); ok && d.Faces > 1 {
		t.multiFaces++
	}

	if r.Status == StatusSuccess {
		t.detections++
		t.confSum += r.Confidence
		if !t.lookingAway {
			t.lookingAway = true
			t.start = index
		}
		return
	}

	if t.lookingAway {
		t.durations = append(t.durations, float64(index-t.start)/t.fps)
		t.lookingAway = false
	}
}

// Summary returns the aggregate of the observed frames.
func (t *LookAwayTracker) Summary() report.Summary {
	s := HeadSummary{
		Detected:            t.detections > 0,
		Detections:          t.detections,
		EvaluatedFrames:     t.evaluated,
		Events:              len(t.durations),
		MultipleFacesFrames: t.multiFaces,
	}
	if t.detections > 0 {
		s.Confidence = t.confSum / float64(t.detections)
	}

	var total, longest float64
	for _, d := range t.durations {
		total += d
		longest = max(longest, d)
		if d >= t.minDuration {
			s.SustainedEvents++
		}
	}
	s.TotalDuration = round2(total)
	s.LongestDuration = round2(longest)
	return s
}
