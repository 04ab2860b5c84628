package pipeline

import (
	"context"
	"image"
	"io"
	"time"
)

// Frame is one decoded video frame. Image may be nil when detections come
// from a recorded replay and no pixels are needed.
type Frame struct {
	T     time.Duration
	Image image.Image
}

// StaticFrames is a FrameSource over a fixed timestamp list with no pixel
// data. It drives offline runs where a replay detector supplies the faces.
type StaticFrames struct {
	timestamps []time.Duration
	cursor     int
}

// NewStaticFrames creates a frame source emitting one empty frame per
// timestamp, in order.
func NewStaticFrames(timestamps []time.Duration) *StaticFrames {
	return &StaticFrames{timestamps: timestamps}
}

func (s *StaticFrames) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.cursor >= len(s.timestamps) {
		return Frame{}, io.EOF
	}
	f := Frame{T: s.timestamps[s.cursor]}
	s.cursor++
	return f, nil
}

func (s *StaticFrames) Close() error { return nil }

// PCMAudio is an AudioSource over an in-memory mono sample buffer.
type PCMAudio struct {
	samples []float32
	cursor  int
}

// NewPCMAudio creates an audio source over samples in [-1,1].
func NewPCMAudio(samples []float32) *PCMAudio {
	return &PCMAudio{samples: samples}
}

func (a *PCMAudio) Next(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.cursor >= len(a.samples) {
		return nil, io.EOF
	}
	end := a.cursor + pcmChunkSamples
	if end > len(a.samples) {
		end = len(a.samples)
	}
	chunk := a.samples[a.cursor:end]
	a.cursor = end
	return chunk, nil
}

func (a *PCMAudio) Close() error { return nil }
