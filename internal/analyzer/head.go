package analyzer

import (
	"context"
	"image"
	"math"

	"github.com/rafeyhusain/ai-pose-detection/internal/perception"
	"github.com/rafeyhusain/ai-pose-detection/internal/request"
)

// HeadDetail is the per-frame detail of the head-pose analyzer.
type HeadDetail struct {
	FaceFound bool    `json:"face_found"`
	Faces     int     `json:"faces"`
	Deviation float64 `json:"deviation"`
}

// HeadPose flags frames where the head or gaze deviates from the camera.
type HeadPose struct {
	Base
	req        request.Head
	landmarker perception.FaceLandmarker
}

// NewHeadPose creates a head-pose analyzer for req.
func NewHeadPose(req request.Head, landmarker perception.FaceLandmarker, opts Options) *HeadPose {
	return &HeadPose{
		Base:       newBase(request.AnalyzerHead, opts),
		req:        req,
		landmarker: landmarker,
	}
}

// Bind targets input and recreates the output folder.
func (h *HeadPose) Bind(input string) error {
	h.req.Input = input
	return h.bindFolder(input)
}

// Evaluate classifies the landmarks of one face. Landmarks missing the
// points the look mode needs are never away.
func (h *HeadPose) Evaluate(l perception.Landmarks) (away bool, deviation float64) {
	tau := h.req.LookAwayThreshold

	switch h.req.LookMode {
	case request.LookGaze:
		left, okL := l.At(perception.LeftEye)
		right, okR := l.At(perception.RightEye)
		if !okL || !okR {
			return false, 0
		}
		deviation = math.Abs((left.X+right.X)/2 - 0.5)
		return deviation > tau, deviation

	case request.LookYawPitch:
		nose, ok := l.At(perception.NoseTip)
		if !ok {
			return false, 0
		}
		dx := math.Abs(nose.X - 0.5)
		dy := math.Abs(nose.Y - 0.5)
		return dx > tau || dy > tau, math.Max(dx, dy)

	default:
		nose, ok := l.At(perception.NoseTip)
		if !ok {
			return false, 0
		}
		deviation = math.Abs(nose.X - 0.5)
		return deviation > tau, deviation
	}
}

// Confidence maps a deviation onto [0,1]: linear up to the threshold,
// saturating at 1 beyond it.
func Confidence(deviation, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return math.Min(1, deviation/threshold)
}

// AnalyzeFrame evaluates the first face of the frame.
func (h *HeadPose) AnalyzeFrame(ctx context.Context, index int, frame image.Image) Result {
	if !Evaluated(index, h.req.FrameSkip) {
		return Result{Status: StatusSkipped}
	}

	faces, err := h.landmarker.Landmarks(ctx, frame)
	if err != nil {
		h.log.Warn("Landmark estimation failed", "frame", index, "error", err)
		return Result{Status: StatusUnknown}
	}
	if len(faces) == 0 {
		return Result{Status: StatusUnknown, Detail: HeadDetail{}}
	}

	away, deviation := h.Evaluate(faces[0])
	detail := HeadDetail{FaceFound: true, Faces: len(faces), Deviation: deviation}
	if !away {
		return Result{Status: StatusUnknown, Detail: detail}
	}

	h.log.Info("Looking away", "frame", index, "deviation", math.Round(deviation*1000)/1000)
	return Result{
		Status:     StatusSuccess,
		Confidence: Confidence(deviation, h.req.LookAwayThreshold),
		Detail:     detail,
	}
}

// Close stops the landmark adapter.
func (h *HeadPose) Close() error {
	return h.landmarker.Close()
}

// NewTracker returns a look-away tracker for one file.
func (h *HeadPose) NewTracker(fps float64) Tracker {
	return NewLookAwayTracker(fps, h.req.LookAwayDuration)
}
