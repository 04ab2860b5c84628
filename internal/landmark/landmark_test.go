package landmark

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cliplab/autoframe/internal/geom"
)

func TestMouthOpenness(t *testing.T) {
	face := geom.Rect{X: 100, Y: 100, W: 200, H: 250}

	closed := Set{
		MouthTop:    geom.Point{X: 200, Y: 300},
		MouthBottom: geom.Point{X: 200, Y: 300},
		MouthLeft:   geom.Point{X: 170, Y: 300},
		MouthRight:  geom.Point{X: 230, Y: 300},
	}
	if got := MouthOpenness(closed, face); got != 0 {
		t.Errorf("closed mouth openness = %v, want 0", got)
	}

	// Fully open: separation = fullOpenRatio * face height.
	open := closed
	open.MouthBottom = geom.Point{X: 200, Y: 300 + fullOpenRatio*face.H}
	if got := MouthOpenness(open, face); got < 0.99 {
		t.Errorf("open mouth openness = %v, want ~1", got)
	}

	// Half open is roughly half way.
	half := closed
	half.MouthBottom = geom.Point{X: 200, Y: 300 + fullOpenRatio*face.H/2}
	got := MouthOpenness(half, face)
	if got < 0.45 || got > 0.55 {
		t.Errorf("half-open mouth openness = %v, want ~0.5", got)
	}

	// Degenerate face box.
	if got := MouthOpenness(open, geom.Rect{}); got != 0 {
		t.Errorf("openness with empty face = %v, want 0", got)
	}
}

func TestMouthOpennessClamped(t *testing.T) {
	face := geom.Rect{W: 100, H: 100}
	wide := Set{
		MouthTop:    geom.Point{X: 50, Y: 40},
		MouthBottom: geom.Point{X: 50, Y: 90}, // absurd separation
		MouthLeft:   geom.Point{X: 30, Y: 60},
		MouthRight:  geom.Point{X: 70, Y: 60},
	}
	if got := MouthOpenness(wide, face); got != 1 {
		t.Errorf("openness = %v, want clamped 1", got)
	}
}

func TestEyesCenter(t *testing.T) {
	s := Set{
		LeftEye:  geom.Point{X: 100, Y: 200},
		RightEye: geom.Point{X: 160, Y: 204},
	}
	c := s.EyesCenter()
	if c.X != 130 || c.Y != 202 {
		t.Errorf("EyesCenter = %+v, want (130, 202)", c)
	}
}

func replayLine(tsMs int64, faces string) string {
	return fmt.Sprintf(`{"timestamp_ms":%d,"width":1920,"height":1080,"faces":[%s]}`, tsMs, faces)
}

const faceJSON = `{"box":[0.4,0.3,0.1,0.2],"confidence":0.9,"landmarks":{` +
	`"mouth_top":[0.45,0.42],"mouth_bottom":[0.45,0.44],"mouth_left":[0.43,0.43],"mouth_right":[0.47,0.43],` +
	`"left_eye":[0.43,0.35],"right_eye":[0.47,0.35],"nose_tip":[0.45,0.39],"chin":[0.45,0.49]}}`

func TestReplayDetect(t *testing.T) {
	dump := strings.Join([]string{
		replayLine(0, faceJSON),
		replayLine(33, faceJSON),
		replayLine(66, ""),
	}, "\n")

	rp, err := NewReplay(strings.NewReader(dump), 0.5)
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}

	ts := rp.Timestamps()
	if len(ts) != 3 || ts[1] != 33*time.Millisecond {
		t.Fatalf("Timestamps = %v", ts)
	}

	dets, err := rp.Detect(context.Background(), nil, 0)
	if err != nil || len(dets) != 1 {
		t.Fatalf("Detect(0) = %v faces, err %v; want 1 face", len(dets), err)
	}

	// Pixel conversion from normalized coordinates.
	d := dets[0]
	if d.Box.X != 0.4*1920 || d.Box.H != 0.2*1080 {
		t.Errorf("Box = %+v, not converted to pixels", d.Box)
	}
	if d.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", d.Confidence)
	}

	// Third record has no faces.
	dets, err = rp.Detect(context.Background(), nil, 66*time.Millisecond)
	if err != nil || len(dets) != 0 {
		t.Errorf("Detect(66ms) = %v faces, err %v; want 0", len(dets), err)
	}

	// Far beyond the recording: nothing within tolerance.
	dets, _ = rp.Detect(context.Background(), nil, 10*time.Second)
	if len(dets) != 0 {
		t.Errorf("Detect(10s) = %v faces, want 0", len(dets))
	}
}

func TestReplayConfidenceFilter(t *testing.T) {
	rp, err := NewReplay(strings.NewReader(replayLine(0, faceJSON)), 0.95)
	if err != nil {
		t.Fatal(err)
	}
	dets, _ := rp.Detect(context.Background(), nil, 0)
	if len(dets) != 0 {
		t.Error("detection below threshold should be dropped")
	}
}

func TestReplayRejectsUnsorted(t *testing.T) {
	dump := replayLine(100, "") + "\n" + replayLine(50, "")
	if _, err := NewReplay(strings.NewReader(dump), 0); err == nil {
		t.Error("unsorted dump should be rejected")
	}
}
