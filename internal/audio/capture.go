// Package audio captures live microphone input for the monitor mode.
package audio

import (
	"context"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/cliplab/autoframe/internal/errors"
)

const framesPerBuffer = 1024

// Capturer reads mono samples from the default input device. It implements
// the pipeline AudioSource contract: Next blocks for the next chunk and
// returns io.EOF after Close.
type Capturer struct {
	stream *portaudio.Stream
	buf    []float32
	rate   int

	mu     sync.Mutex
	closed bool
}

// NewCapturer initializes portaudio and opens the default input device at
// the given sample rate.
func NewCapturer(sampleRate int) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendUnavailable, "initializing portaudio")
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, apperrors.Wrap(err, apperrors.CodeBackendUnavailable, "no default input device")
	}

	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, apperrors.Wrapf(err, apperrors.CodeBackendUnavailable, "opening %q", dev.Name)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, apperrors.Wrapf(err, apperrors.CodeBackendUnavailable, "starting %q", dev.Name)
	}

	return &Capturer{stream: stream, buf: buf, rate: sampleRate}, nil
}

// SampleRate returns the capture rate in Hz.
func (c *Capturer) SampleRate() int { return c.rate }

// Next blocks until the next chunk of samples is available. The returned
// slice is owned by the caller.
func (c *Capturer) Next(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, io.EOF
	}

	if err := c.stream.Read(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "reading audio device")
	}
	return append([]float32(nil), c.buf...), nil
}

// Close stops the stream and tears down portaudio.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.stream.Stop()
	_ = c.stream.Close()
	return portaudio.Terminate()
}
