// Package geom provides pixel-space geometry for crop framing.
package geom

import "math"

// TargetAspect is the output aspect ratio (width / height) for vertical clips.
const TargetAspect = 9.0 / 16.0

// Point is a position in source pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned rectangle in source pixel coordinates.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Center returns the rectangle midpoint.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Area returns the rectangle area.
func (r Rect) Area() float64 {
	return r.W * r.H
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// IoU returns intersection over union with o, in [0,1].
func (r Rect) IoU(o Rect) float64 {
	ix := math.Max(0, math.Min(r.Right(), o.Right())-math.Max(r.X, o.X))
	iy := math.Max(0, math.Min(r.Bottom(), o.Bottom())-math.Max(r.Y, o.Y))
	inter := ix * iy
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Lerp interpolates linearly between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// LerpPoint interpolates each axis of two points independently.
func LerpPoint(a, b Point, t float64) Point {
	return Point{X: Lerp(a.X, b.X, t), Y: Lerp(a.Y, b.Y, t)}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CropSize returns the 9:16 crop dimensions for a given zoom inside a frame.
// Zoom 1.0 uses the full frame height. If the derived width exceeds the frame,
// the crop shrinks to fit while preserving the aspect ratio.
func CropSize(frameW, frameH, zoom float64) (w, h float64) {
	if zoom < 1 {
		zoom = 1
	}
	h = frameH / zoom
	w = h * TargetAspect
	if w > frameW {
		w = frameW
		h = w / TargetAspect
	}
	return w, h
}

// CropRect derives the crop rectangle for a center and zoom, clamped to lie
// fully within [0,frameW]x[0,frameH]. When the ideal center would push the
// rectangle out of bounds it is re-centered minimally rather than truncated.
func CropRect(center Point, zoom, frameW, frameH float64) Rect {
	w, h := CropSize(frameW, frameH, zoom)
	x := Clamp(center.X-w/2, 0, frameW-w)
	y := Clamp(center.Y-h/2, 0, frameH-h)
	return Rect{X: x, Y: y, W: w, H: h}
}
