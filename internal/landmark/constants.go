// Package landmark defines the face detection backend abstraction.
package landmark

import "time"

const (
	// Lip separation as a fraction of face height at a fully open mouth.
	fullOpenRatio = 0.08

	// Replay frames further than this from the requested timestamp are
	// not served.
	replayTolerance = 50 * time.Millisecond

	// JPEG quality for frames shipped to the sidecar.
	sidecarJPEGQuality = 80
)
