package track

const (
	// Hamming distance between perceptual hashes at or below which two
	// frames count as identical and detection is skipped.
	maxHashDistance = 5

	// A detection matches an existing track when its center lies within
	// this fraction of the track's face diagonal.
	matchDistanceScale = 0.75

	// Confidence multiplier applied per coasted frame.
	coastDecay = 0.85
)
