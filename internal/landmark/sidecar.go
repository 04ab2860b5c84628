package landmark

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/cliplab/autoframe/internal/errors"
	"github.com/cliplab/autoframe/internal/resilience"
	"github.com/cliplab/autoframe/internal/trace"
)

// Sidecar talks to an external landmarker process over a websocket JSON
// protocol. The model runs out of process; this client only moves frames
// out and typed detections back.
type Sidecar struct {
	url           string
	minConfidence float64
	breaker       *resilience.Breaker

	mu   sync.Mutex
	conn *websocket.Conn
}

type sidecarRequest struct {
	TimestampMs int64  `json:"timestamp_ms"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Frame       []byte `json:"frame"` // JPEG, base64 via JSON
}

type sidecarResponse struct {
	Faces []wireFace `json:"faces"`
}

// DialSidecar connects to the landmarker sidecar at url. Detections below
// minConfidence are dropped client-side.
func DialSidecar(ctx context.Context, url string, minConfidence float64) (*Sidecar, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeBackendUnavailable, "dialing landmarker at %s", url)
	}
	// Frames are large; lift the default read limit for echo/error payloads.
	conn.SetReadLimit(1 << 22)

	return &Sidecar{
		url:           url,
		minConfidence: minConfidence,
		breaker:       resilience.New(resilience.Config{}),
		conn:          conn,
	}, nil
}

// Detect ships the frame to the sidecar and returns its detections. A lost
// or slow sidecar trips the breaker and surfaces CodeBackendUnavailable,
// which the tracker absorbs as a coasting frame.
func (s *Sidecar) Detect(ctx context.Context, frame image.Image, ts time.Duration) ([]Detection, error) {
	if frame == nil {
		return nil, nil
	}
	if err := s.breaker.Allow(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendUnavailable, "landmarker breaker open")
	}

	bounds := frame.Bounds()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: sidecarJPEGQuality}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendUnavailable, "encoding frame for landmarker")
	}

	req := sidecarRequest{
		TimestampMs: ts.Milliseconds(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Frame:       buf.Bytes(),
	}

	var resp sidecarResponse
	s.mu.Lock()
	err := wsjson.Write(ctx, s.conn, req)
	if err == nil {
		err = wsjson.Read(ctx, s.conn, &resp)
	}
	s.mu.Unlock()

	if err != nil {
		s.breaker.Failure()
		trace.Logger(ctx).Debug("landmarker round trip failed", "error", err)
		return nil, apperrors.Wrap(err, apperrors.CodeBackendUnavailable, "landmarker round trip")
	}
	s.breaker.Success()

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	dets := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if f.Confidence < s.minConfidence {
			continue
		}
		dets = append(dets, f.detection(w, h))
	}
	return dets, nil
}

// Close shuts the sidecar connection down.
func (s *Sidecar) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "")
	s.conn = nil
	return err
}
