package perception

import (
	"context"
	"image"
	"log/slog"
	"slices"
	"time"
)

type landmarkReply struct {
	Faces []Landmarks `json:"faces"`
}

type detectReply struct {
	Detections []Detection `json:"detections"`
}

// Landmarker is a FaceLandmarker backed by an adapter process.
type Landmarker struct {
	proc *Process
}

// StartLandmarker launches the landmark adapter command.
func StartLandmarker(ctx context.Context, argv []string, timeout time.Duration, log *slog.Logger) (*Landmarker, error) {
	proc, err := StartProcess(ctx, "landmarker", argv, timeout, log)
	if err != nil {
		return nil, err
	}
	return &Landmarker{proc: proc}, nil
}

// Landmarks returns the landmarks of each face in img.
func (l *Landmarker) Landmarks(ctx context.Context, img image.Image) ([]Landmarks, error) {
	var reply landmarkReply
	if err := l.proc.Call(ctx, img, &reply); err != nil {
		return nil, err
	}
	return reply.Faces, nil
}

// Close stops the adapter process.
func (l *Landmarker) Close() error {
	return l.proc.Close()
}

// Detector is an ObjectDetector backed by an adapter process.
type Detector struct {
	proc *Process
}

// StartDetector launches the detector adapter command with the model
// weights appended as --model <name>.
func StartDetector(ctx context.Context, argv []string, model string, timeout time.Duration, log *slog.Logger) (*Detector, error) {
	args := slices.Clone(argv)
	if model != "" {
		args = append(args, "--model", model)
	}
	proc, err := StartProcess(ctx, "detector", args, timeout, log)
	if err != nil {
		return nil, err
	}
	return &Detector{proc: proc}, nil
}

// Detect returns every detection in img.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	var reply detectReply
	if err := d.proc.Call(ctx, img, &reply); err != nil {
		return nil, err
	}
	return reply.Detections, nil
}

// Close stops the adapter process.
func (d *Detector) Close() error {
	return d.proc.Close()
}
