// Package landmark defines the face detection backend abstraction.
// Backends return per-frame detections with a fixed set of named landmark
// points; which model indices map to those points is a backend detail.
package landmark

import (
	"context"
	"image"
	"time"

	"github.com/cliplab/autoframe/internal/geom"
)

// Set is the fixed-cardinality landmark geometry for one face, in source
// pixel coordinates.
type Set struct {
	MouthTop    geom.Point
	MouthBottom geom.Point
	MouthLeft   geom.Point
	MouthRight  geom.Point
	LeftEye     geom.Point
	RightEye    geom.Point
	NoseTip     geom.Point
	Chin        geom.Point
}

// Valid reports whether the set carries usable mouth geometry.
func (s Set) Valid() bool {
	return s.MouthTop != s.MouthBottom || s.MouthLeft != s.MouthRight
}

// EyesCenter returns the midpoint between the eyes, the preferred framing
// focus for talking-head shots.
func (s Set) EyesCenter() geom.Point {
	return geom.Point{
		X: (s.LeftEye.X + s.RightEye.X) / 2,
		Y: (s.LeftEye.Y + s.RightEye.Y) / 2,
	}
}

// Detection is one detected face in a frame.
type Detection struct {
	Box        geom.Rect
	Confidence float64
	Points     Set
}

// Detector produces detections for a frame. Implementations must not retain
// the frame buffer beyond the call.
type Detector interface {
	Detect(ctx context.Context, frame image.Image, ts time.Duration) ([]Detection, error)
	Close() error
}

// MouthOpenness computes the normalized mouth-openness scalar for a face:
// vertical lip separation over face height, scaled so a fully open mouth
// approaches 1.0.
func MouthOpenness(s Set, face geom.Rect) float64 {
	if face.H <= 0 || !s.Valid() {
		return 0
	}
	sep := geom.Dist(s.MouthTop, s.MouthBottom)
	return geom.Clamp(sep/face.H/fullOpenRatio, 0, 1)
}
