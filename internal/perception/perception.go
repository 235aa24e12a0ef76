// Package perception defines the boundary to the facial-landmark estimator
// and the object detector. Both run as external adapter processes; the Go
// side only sees normalized landmarks and scored detections.
package perception

import (
	"context"
	"errors"
	"image"
)

// ErrAdapter marks a failed adapter call: process crash, timeout or a
// reply the adapter flagged as an error.
var ErrAdapter = errors.New("perception adapter failed")

// Face-mesh landmark indices (468-point scheme).
const (
	NoseTip  = 1
	LeftEye  = 33
	RightEye = 263
)

// ClassPerson is the detector class id of a person.
const ClassPerson = 0

// Point is a landmark in image-normalized coordinates: x and y in [0,1]
// relative to frame width and height.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmarks is the ordered landmark set of one face.
type Landmarks []Point

// At returns landmark i, or false when the set is too short.
func (l Landmarks) At(i int) (Point, bool) {
	if i < 0 || i >= len(l) {
		return Point{}, false
	}
	return l[i], true
}

// Detection is one scored bounding box from the object detector.
type Detection struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	// Box is x1, y1, x2, y2 in pixels.
	Box [4]float64 `json:"box"`
}

// Rect returns the box as an integer rectangle.
func (d Detection) Rect() image.Rectangle {
	return image.Rect(int(d.Box[0]), int(d.Box[1]), int(d.Box[2]), int(d.Box[3]))
}

// FaceLandmarker returns the landmarks of every face found in a frame.
// Zero faces is not an error.
type FaceLandmarker interface {
	Landmarks(ctx context.Context, img image.Image) ([]Landmarks, error)
	Close() error
}

// ObjectDetector returns every detection in a frame.
type ObjectDetector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
	Close() error
}
