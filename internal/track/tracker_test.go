package track

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/cliplab/autoframe/internal/geom"
	"github.com/cliplab/autoframe/internal/landmark"
)

type scriptedDetector struct {
	frames [][]landmark.Detection
	calls  int
}

func (d *scriptedDetector) Detect(context.Context, image.Image, time.Duration) ([]landmark.Detection, error) {
	if d.calls >= len(d.frames) {
		return nil, nil
	}
	dets := d.frames[d.calls]
	d.calls++
	return dets, nil
}

func (d *scriptedDetector) Close() error { return nil }

func det(x, y float64) landmark.Detection {
	return landmark.Detection{
		Box:        geom.Rect{X: x, Y: y, W: 100, H: 120},
		Confidence: 0.9,
	}
}

func TestTrackerStableIdentity(t *testing.T) {
	d := &scriptedDetector{frames: [][]landmark.Detection{
		{det(100, 100), det(800, 100)},
		{det(110, 105), det(790, 98)}, // both moved slightly
	}}
	tr := New(d, 3, false)

	s1, err := tr.Observe(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(s1.Views) != 2 {
		t.Fatalf("frame 1: %d views, want 2", len(s1.Views))
	}
	if s1.Views[0].ID != 1 || s1.Views[1].ID != 2 {
		t.Fatalf("IDs = %d, %d; want 1, 2", s1.Views[0].ID, s1.Views[1].ID)
	}

	s2, _ := tr.Observe(context.Background(), nil, 33*time.Millisecond)
	if len(s2.Views) != 2 {
		t.Fatalf("frame 2: %d views, want 2", len(s2.Views))
	}
	for i, v := range s2.Views {
		if v.ID != s1.Views[i].ID {
			t.Errorf("view %d changed identity: %d -> %d", i, s1.Views[i].ID, v.ID)
		}
		if v.Coasting {
			t.Errorf("view %d coasting despite a fresh match", i)
		}
	}
}

func TestTrackerCoastAndExpire(t *testing.T) {
	frames := [][]landmark.Detection{{det(100, 100)}}
	for i := 0; i < 5; i++ {
		frames = append(frames, nil) // face disappears
	}
	d := &scriptedDetector{frames: frames}
	tr := New(d, 2, false)

	snap, _ := tr.Observe(context.Background(), nil, 0)
	conf := snap.Views[0].Confidence

	// Two frames of grace: track coasts with decaying confidence.
	for i := 1; i <= 2; i++ {
		snap, _ = tr.Observe(context.Background(), nil, time.Duration(i)*33*time.Millisecond)
		if len(snap.Views) != 1 {
			t.Fatalf("miss %d: track expired early", i)
		}
		v := snap.Views[0]
		if !v.Coasting {
			t.Errorf("miss %d: not marked coasting", i)
		}
		if v.Confidence >= conf {
			t.Errorf("miss %d: confidence did not decay (%v -> %v)", i, conf, v.Confidence)
		}
		conf = v.Confidence
	}

	// Third consecutive miss exceeds the grace window.
	snap, _ = tr.Observe(context.Background(), nil, 99*time.Millisecond)
	if len(snap.Views) != 0 {
		t.Fatalf("track survived past grace: %+v", snap.Views)
	}
}

func TestTrackerNewFaceGetsFreshID(t *testing.T) {
	d := &scriptedDetector{frames: [][]landmark.Detection{
		{det(100, 100)},
		nil, nil, nil, // expire track 1 (grace 1)
		{det(100, 100)}, // same spot, new person
	}}
	tr := New(d, 1, false)

	var snap Snapshot
	for i := 0; i < 5; i++ {
		snap, _ = tr.Observe(context.Background(), nil, time.Duration(i)*33*time.Millisecond)
	}
	if len(snap.Views) != 1 {
		t.Fatalf("%d views, want 1", len(snap.Views))
	}
	if snap.Views[0].ID == 1 {
		t.Error("expired identity was reused")
	}
}

func grayFrame(fill uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	return img
}

func TestTrackerFrameGateSkipsIdenticalFrames(t *testing.T) {
	d := &scriptedDetector{frames: [][]landmark.Detection{
		{det(100, 100)},
		{det(500, 500)}, // must not be consumed while the gate holds
	}}
	tr := New(d, 3, true)

	s1, err := tr.Observe(context.Background(), grayFrame(128), 0)
	if err != nil {
		t.Fatal(err)
	}
	// Identical frame: detections are reused, the backend is not called.
	s2, _ := tr.Observe(context.Background(), grayFrame(128), 33*time.Millisecond)
	if d.calls != 1 {
		t.Fatalf("detector called %d times across identical frames, want 1", d.calls)
	}
	if len(s2.Views) != 1 || s2.Views[0].Box != s1.Views[0].Box {
		t.Errorf("gated frame changed the arena: %+v", s2.Views)
	}
}

func TestTrackerGateDisabled(t *testing.T) {
	d := &scriptedDetector{frames: [][]landmark.Detection{
		{det(100, 100)},
		{det(100, 100)},
	}}
	tr := New(d, 3, false)

	tr.Observe(context.Background(), grayFrame(128), 0)
	tr.Observe(context.Background(), grayFrame(128), 33*time.Millisecond)
	if d.calls != 2 {
		t.Fatalf("detector called %d times with the gate off, want 2", d.calls)
	}
}

func TestMatchGreedyNearest(t *testing.T) {
	tracks := []geom.Rect{
		{X: 0, Y: 0, W: 100, H: 100},
		{X: 500, Y: 0, W: 100, H: 100},
	}
	dets := []landmark.Detection{
		det(510, 5), // near track 1
		det(5, 2),   // near track 0
		det(1000, 1000),
	}
	assign := match(tracks, dets)
	want := []int{1, 0, -1}
	for i := range want {
		if assign[i] != want[i] {
			t.Errorf("assign[%d] = %d, want %d", i, assign[i], want[i])
		}
	}
}

func TestMatchRespectsRadius(t *testing.T) {
	tracks := []geom.Rect{{X: 0, Y: 0, W: 100, H: 100}}
	far := []landmark.Detection{det(400, 400)}
	if assign := match(tracks, far); assign[0] != -1 {
		t.Errorf("distant detection matched: %v", assign)
	}
}
