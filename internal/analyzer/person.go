package analyzer

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"github.com/rafeyhusain/ai-pose-detection/internal/perception"
	"github.com/rafeyhusain/ai-pose-detection/internal/report"
	"github.com/rafeyhusain/ai-pose-detection/internal/request"
)

const boxThickness = 2

var boxColor = color.RGBA{G: 255, A: 255}

// PersonDetail is the per-frame detail of the person-count analyzer.
type PersonDetail struct {
	Count int `json:"count"`
}

// PersonCount flags frames showing more than one person.
type PersonCount struct {
	Base
	req      request.Person
	detector perception.ObjectDetector
}

// NewPersonCount creates a person-count analyzer for req.
func NewPersonCount(req request.Person, detector perception.ObjectDetector, opts Options) *PersonCount {
	return &PersonCount{
		Base:     newBase(request.AnalyzerPerson, opts),
		req:      req,
		detector: detector,
	}
}

// Bind targets input and recreates the output folder.
func (p *PersonCount) Bind(input string) error {
	p.req.Input = input
	return p.bindFolder(input)
}

// People returns the person detections above the confidence threshold.
func (p *PersonCount) People(dets []perception.Detection) []perception.Detection {
	var people []perception.Detection
	for _, d := range dets {
		if d.ClassID == perception.ClassPerson && d.Confidence > p.req.Confidence {
			people = append(people, d)
		}
	}
	return people
}

// Evaluate counts qualifying persons and returns the highest confidence
// among them, rounded to two decimals.
func (p *PersonCount) Evaluate(dets []perception.Detection) (count int, maxConfidence float64) {
	for _, d := range p.People(dets) {
		count++
		maxConfidence = max(maxConfidence, d.Confidence)
	}
	return count, round2(maxConfidence)
}

// AnalyzeFrame succeeds when more than one person is in frame. The
// evidence image carries a box around every counted person.
func (p *PersonCount) AnalyzeFrame(ctx context.Context, index int, frame image.Image) Result {
	if !Evaluated(index, p.req.FrameSkip) {
		return Result{Status: StatusSkipped}
	}

	dets, err := p.detector.Detect(ctx, frame)
	if err != nil {
		p.log.Warn("Detection failed", "frame", index, "error", err)
		return Result{Status: StatusUnknown}
	}

	count, confidence := p.Evaluate(dets)
	detail := PersonDetail{Count: count}
	if count <= 1 {
		return Result{Status: StatusUnknown, Detail: detail}
	}

	p.log.Info("Multiple people", "frame", index, "count", count, "confidence", confidence)
	return Result{
		Status:     StatusSuccess,
		Confidence: confidence,
		Detail:     detail,
		Evidence:   DrawBoxes(frame, p.People(dets)),
	}
}

// Close stops the detector adapter.
func (p *PersonCount) Close() error {
	return p.detector.Close()
}

// DrawBoxes returns a copy of img with a green outline around each detection.
func DrawBoxes(img image.Image, dets []perception.Detection) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	src := image.NewUniform(boxColor)
	for _, d := range dets {
		r := d.Rect().Intersect(b)
		if r.Empty() {
			continue
		}
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+boxThickness),
			image.Rect(r.Min.X, r.Max.Y-boxThickness, r.Max.X, r.Max.Y),
			image.Rect(r.Min.X, r.Min.Y, r.Min.X+boxThickness, r.Max.Y),
			image.Rect(r.Max.X-boxThickness, r.Min.Y, r.Max.X, r.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(out, e.Intersect(r), src, image.Point{}, draw.Src)
		}
	}
	return out
}

// PersonSummary aggregates the person counts of one file.
type PersonSummary struct {
	Detected bool `json:"detected"`
	// Confidence is the share of evaluated frames with multiple people.
	Confidence      float64 `json:"confidence"`
	DetectedFrames  int     `json:"detected_frames"`
	EvaluatedFrames int     `json:"evaluated_frames"`
	MaxPeople       int     `json:"max_people"`
}

// Merge adds the summary of a following chunk.
func (s PersonSummary) Merge(other report.Summary) report.Summary {
	o, ok := other.(PersonSummary)
	if !ok {
		return s
	}
	out := PersonSummary{
		Detected:        s.Detected || o.Detected,
		DetectedFrames:  s.DetectedFrames + o.DetectedFrames,
		EvaluatedFrames: s.EvaluatedFrames + o.EvaluatedFrames,
		MaxPeople:       max(s.MaxPeople, o.MaxPeople),
	}
	if out.EvaluatedFrames > 0 {
		out.Confidence = round2(float64(out.DetectedFrames) / float64(out.EvaluatedFrames))
	}
	return out
}

// PersonTracker counts evaluated and positive frames of one file.
type PersonTracker struct {
	summary PersonSummary
}

// NewTracker returns a person tracker for one file.
func (p *PersonCount) NewTracker(float64) Tracker {
	return &PersonTracker{}
}

// Observe feeds the result of frame index.
func (t *PersonTracker) Observe(_ int, r Result) {
	if r.Status == StatusSkipped {
		return
	}
	t.summary.EvaluatedFrames++
	if d, ok := r.Detail.(PersonDetail); ok {
		t.summary.MaxPeople = max(t.summary.MaxPeople, d.Count)
	}
	if r.Status == StatusSuccess {
		t.summary.DetectedFrames++
	}
}

// Summary returns the aggregate of the observed frames.
func (t *PersonTracker) Summary() report.Summary {
	s := t.summary
	s.Detected = s.DetectedFrames > 0
	if s.EvaluatedFrames > 0 {
		s.Confidence = round2(float64(s.DetectedFrames) / float64(s.EvaluatedFrames))
	}
	return s
}
