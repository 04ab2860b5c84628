package pipeline

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/cliplab/autoframe/internal/config"
	apperrors "github.com/cliplab/autoframe/internal/errors"
	"github.com/cliplab/autoframe/internal/geom"
	"github.com/cliplab/autoframe/internal/landmark"
)

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.FrameGate = false
	cfg.SampleRate = 16000
	return cfg
}

// fixedDetector always reports one face at a fixed position.
type fixedDetector struct{}

func (fixedDetector) Detect(context.Context, image.Image, time.Duration) ([]landmark.Detection, error) {
	return []landmark.Detection{{
		Box:        geom.Rect{X: 800, Y: 300, W: 200, H: 240},
		Confidence: 0.9,
	}}, nil
}

func (fixedDetector) Close() error { return nil }

func frameTimestamps(n int, fps float64) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = time.Duration(float64(i) / fps * float64(time.Second))
	}
	return out
}

func tone(seconds float64, rate int) []float32 {
	out := make([]float32, int(seconds*float64(rate)))
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*200*float64(i)/float64(rate)))
	}
	return out
}

func TestCoordinatorEndToEnd(t *testing.T) {
	c := New(Options{
		Config:   testConfig(),
		Detector: fixedDetector{},
		Width:    1920,
		Height:   1080,
	})

	path, err := c.Run(context.Background(),
		NewStaticFrames(frameTimestamps(60, 30)),
		NewPCMAudio(tone(2, 16000)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !path.Complete() {
		t.Error("path not marked complete")
	}
	if n := len(path.Keyframes); n < 55 || n > 65 {
		t.Fatalf("%d keyframes from a 2s input at 30 ticks/s", n)
	}

	// Ticks are consecutive and the crop never leaves the source frame.
	for i, kf := range path.Keyframes {
		if kf.Tick != int64(i) {
			t.Fatalf("keyframe %d has tick %d", i, kf.Tick)
		}
		c := kf.Crop
		if c.X < 0 || c.Y < 0 || c.Right() > 1920+1e-9 || c.Bottom() > 1080+1e-9 {
			t.Fatalf("tick %d: crop %+v escapes the frame", i, c)
		}
	}

	// A lone face over continuous speech ends up selected.
	last := path.Keyframes[len(path.Keyframes)-1]
	if last.TrackID == 0 {
		t.Error("no speaker selected despite a face and continuous voice")
	}
}

func TestCoordinatorDebugTap(t *testing.T) {
	debug := make(chan TickDebug, 256)
	c := New(Options{
		Config:   testConfig(),
		Detector: fixedDetector{},
		Width:    1920,
		Height:   1080,
		Debug:    debug,
	})

	path, err := c.Run(context.Background(),
		NewStaticFrames(frameTimestamps(30, 30)),
		NewPCMAudio(tone(1, 16000)))
	if err != nil {
		t.Fatal(err)
	}
	close(debug)

	var ticks []TickDebug
	for d := range debug {
		ticks = append(ticks, d)
	}
	if len(ticks) == 0 {
		t.Fatal("debug tap received nothing")
	}
	if len(ticks) != len(path.Keyframes) {
		t.Errorf("%d debug ticks for %d keyframes", len(ticks), len(path.Keyframes))
	}
	if ticks[0].RunID != c.RunID() {
		t.Errorf("debug run id %q, want %q", ticks[0].RunID, c.RunID())
	}
	if len(ticks[len(ticks)-1].Views) != 1 {
		t.Errorf("debug views = %d, want 1", len(ticks[len(ticks)-1].Views))
	}
}

// cancellingFrames cancels the run after a number of frames.
type cancellingFrames struct {
	inner  *StaticFrames
	after  int
	n      int
	cancel context.CancelFunc
}

func (s *cancellingFrames) Next(ctx context.Context) (Frame, error) {
	if s.n == s.after {
		s.cancel()
	}
	s.n++
	return s.inner.Next(ctx)
}

func (s *cancellingFrames) Close() error { return nil }

func TestCoordinatorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(Options{
		Config:   testConfig(),
		Detector: fixedDetector{},
		Width:    1920,
		Height:   1080,
	})

	frames := &cancellingFrames{
		inner:  NewStaticFrames(frameTimestamps(300, 30)),
		after:  40,
		cancel: cancel,
	}
	path, err := c.Run(ctx, frames, NewPCMAudio(tone(10, 16000)))
	if !apperrors.IsCode(err, apperrors.CodeCancelled) {
		t.Fatalf("err = %v, want CodeCancelled", err)
	}
	if path == nil {
		t.Fatal("no partial path returned")
	}
	if path.Complete() {
		t.Error("cancelled path marked complete")
	}
}

// brokenFrames fails on every read.
type brokenFrames struct{}

func (brokenFrames) Next(context.Context) (Frame, error) {
	return Frame{}, errors.New("corrupt packet")
}

func (brokenFrames) Close() error { return nil }

func TestCoordinatorSustainedDecodeFailure(t *testing.T) {
	c := New(Options{
		Config:   testConfig(),
		Detector: fixedDetector{},
		Width:    1920,
		Height:   1080,
	})

	path, err := c.Run(context.Background(), brokenFrames{}, NewPCMAudio(tone(1, 16000)))
	if !apperrors.IsCode(err, apperrors.CodeDecodeFailure) {
		t.Fatalf("err = %v, want CodeDecodeFailure", err)
	}
	if path.Complete() {
		t.Error("failed path marked complete")
	}
}

// flakyFrames fails a bounded run of frames, then recovers.
type flakyFrames struct {
	inner    *StaticFrames
	failFrom int
	failTo   int
	n        int
}

func (s *flakyFrames) Next(ctx context.Context) (Frame, error) {
	n := s.n
	s.n++
	f, err := s.inner.Next(ctx)
	if err != nil {
		return f, err
	}
	if n >= s.failFrom && n < s.failTo {
		return Frame{}, errors.New("corrupt packet")
	}
	return f, nil
}

func (s *flakyFrames) Close() error { return nil }

func TestCoordinatorSkipsTransientDecodeErrors(t *testing.T) {
	c := New(Options{
		Config:   testConfig(),
		Detector: fixedDetector{},
		Width:    1920,
		Height:   1080,
	})

	frames := &flakyFrames{
		inner:    NewStaticFrames(frameTimestamps(60, 30)),
		failFrom: 20,
		failTo:   25, // below the consecutive-failure limit
	}
	path, err := c.Run(context.Background(), frames, NewPCMAudio(tone(2, 16000)))
	if err != nil {
		t.Fatalf("transient decode errors aborted the run: %v", err)
	}
	if !path.Complete() {
		t.Error("path not complete after recovered decode errors")
	}
}
