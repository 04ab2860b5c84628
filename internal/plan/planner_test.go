package plan

import (
	"math"
	"testing"
	"time"

	"github.com/cliplab/autoframe/internal/geom"
	"github.com/cliplab/autoframe/internal/resolve"
	"github.com/cliplab/autoframe/internal/track"
)

const tickDur = 33 * time.Millisecond

func testParams() Params {
	return Params{
		Width:                1920,
		Height:               1080,
		TickRate:             30,
		FaceVerticalPosition: 0.35,
		HorizontalMargin:     1.5,
		VerticalMargin:       2.0,
		MaxZoom:              2.0,
		SmoothingWindow:      15,
		TransitionTicks:      12,
	}
}

func decision(tick int, id uint64) resolve.Decision {
	return resolve.Decision{
		Tick:       int64(tick),
		T:          time.Duration(tick) * tickDur,
		TrackID:    id,
		Confidence: 0.8,
	}
}

func faceAt(id uint64, x, y float64) track.View {
	return track.View{ID: id, Box: geom.Rect{X: x - 100, Y: y - 120, W: 200, H: 240}}
}

func arena(tick int, views ...track.View) track.Snapshot {
	return track.Snapshot{T: time.Duration(tick) * tickDur, Views: views}
}

func TestPlannerIdleDefault(t *testing.T) {
	p := NewPlanner(testParams())

	// No faces ever: the path stays at frame center, neutral zoom.
	var kf Keyframe
	for i := 0; i < 30; i++ {
		kf = p.Observe(decision(i, 0), arena(i))
	}
	if kf.Zoom != 1.0 {
		t.Errorf("zoom = %v, want neutral 1.0", kf.Zoom)
	}
	if c := kf.Center; c.X != 960 || c.Y != 540 {
		t.Errorf("center = %+v, want frame center", c)
	}

	path := p.Finalize()
	if !path.Complete() {
		t.Error("finalized path not complete")
	}
	if len(path.Keyframes) != 30 {
		t.Errorf("%d keyframes, want 30", len(path.Keyframes))
	}
}

func TestPlannerCropWithinBounds(t *testing.T) {
	p := NewPlanner(testParams())

	// A face jumping around near the edges must never push the crop out
	// of the source frame.
	positions := []geom.Point{
		{X: 110, Y: 130}, {X: 1800, Y: 950}, {X: 50, Y: 1000}, {X: 1900, Y: 100},
	}
	tick := 0
	for _, pos := range positions {
		for i := 0; i < 20; i++ {
			kf := p.Observe(decision(tick, 1), arena(tick, faceAt(1, pos.X, pos.Y)))
			tick++
			c := kf.Crop
			if c.X < 0 || c.Y < 0 || c.Right() > 1920+1e-9 || c.Bottom() > 1080+1e-9 {
				t.Fatalf("tick %d: crop %+v escapes the frame", tick-1, c)
			}
			if ratio := c.W / c.H; math.Abs(ratio-geom.TargetAspect) > 1e-9 {
				t.Fatalf("tick %d: crop aspect %v, want %v", tick-1, ratio, geom.TargetAspect)
			}
			if kf.Zoom < 1 || kf.Zoom > 2 {
				t.Fatalf("tick %d: zoom %v outside [1, 2]", tick-1, kf.Zoom)
			}
		}
	}
}

func TestPlannerConvergesOnStaticFace(t *testing.T) {
	p := NewPlanner(testParams())

	var kf Keyframe
	for i := 0; i < 120; i++ {
		kf = p.Observe(decision(i, 1), arena(i, faceAt(1, 960, 400)))
	}

	// Ideal framing: crop width from the horizontal margin (200 * 1.5 =
	// 300), height 533.3, zoom 1080/533.3 = 2.025 clamped to 2.0.
	if kf.Zoom != 2.0 {
		t.Errorf("converged zoom = %v, want clamped 2.0", kf.Zoom)
	}
	if math.Abs(kf.Center.X-960) > 1 {
		t.Errorf("converged center X = %v, want 960", kf.Center.X)
	}
	// Face focus sits above crop center per the vertical position
	// fraction, so the crop center lands below the face.
	if kf.Center.Y <= 400 {
		t.Errorf("converged center Y = %v, want below the face focus", kf.Center.Y)
	}
}

func TestPlannerHoldsThroughSilence(t *testing.T) {
	p := NewPlanner(testParams())

	for i := 0; i < 60; i++ {
		p.Observe(decision(i, 1), arena(i, faceAt(1, 500, 400)))
	}
	settled := p.Observe(decision(60, 1), arena(60, faceAt(1, 500, 400)))

	// Speaker goes silent and even leaves the frame: freeze, never
	// recenter.
	var kf Keyframe
	for i := 61; i < 90; i++ {
		kf = p.Observe(decision(i, 0), arena(i))
	}
	if geom.Dist(kf.Center, settled.Center) > 0.01 || math.Abs(kf.Zoom-settled.Zoom) > 1e-6 {
		t.Errorf("drifted during silence: %+v -> %+v", settled, kf)
	}
}

func TestPlannerTransitionIsGradual(t *testing.T) {
	p := NewPlanner(testParams())

	left := faceAt(1, 300, 400)
	right := faceAt(2, 1600, 400)
	for i := 0; i < 90; i++ {
		p.Observe(decision(i, 1), arena(i, left, right))
	}
	before := p.Observe(decision(90, 1), arena(90, left, right))

	// Speaker change: the center must sweep, not jump, and every step
	// stays bounded.
	prev := before.Center.X
	var kf Keyframe
	maxStep := 0.0
	for i := 91; i < 150; i++ {
		kf = p.Observe(decision(i, 2), arena(i, left, right))
		step := math.Abs(kf.Center.X - prev)
		if step > maxStep {
			maxStep = step
		}
		prev = kf.Center.X
	}
	if kf.TrackID != 2 {
		t.Fatalf("final keyframe track = %d, want 2", kf.TrackID)
	}
	if kf.Center.X <= before.Center.X+400 {
		t.Errorf("center did not move toward the new speaker: %v -> %v", before.Center.X, kf.Center.X)
	}
	total := kf.Center.X - before.Center.X
	if maxStep > total/3 {
		t.Errorf("max per-tick step %v too large for a %v sweep", maxStep, total)
	}
}

func TestPlannerJitterDamped(t *testing.T) {
	p := NewPlanner(testParams())

	// Small high-frequency detection noise around a fixed position.
	for i := 0; i < 60; i++ {
		p.Observe(decision(i, 1), arena(i, faceAt(1, 960, 500)))
	}
	var prev geom.Point
	first := true
	for i := 60; i < 120; i++ {
		dx := 6 * math.Sin(float64(i)*2.7)
		kf := p.Observe(decision(i, 1), arena(i, faceAt(1, 960+dx, 500)))
		if !first {
			if step := geom.Dist(kf.Center, prev); step > 1.5 {
				t.Fatalf("tick %d: smoothed center moved %vpx on %vpx input noise", i, step, dx)
			}
		}
		prev, first = kf.Center, false
	}
}

func TestPlannerPartialPath(t *testing.T) {
	p := NewPlanner(testParams())
	for i := 0; i < 10; i++ {
		p.Observe(decision(i, 0), arena(i))
	}
	path := p.Partial()
	if path.Complete() {
		t.Error("partial path reports complete")
	}
	if got := path.Duration(); got != 9*tickDur {
		t.Errorf("Duration = %v, want %v", got, 9*tickDur)
	}
}
