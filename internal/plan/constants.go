package plan

const (
	// Per-tick exponential approach rate toward the ideal framing while
	// tracking a speaker.
	trackingRate = 0.25

	// Neutral zoom used before any speaker is seen and when seeding.
	neutralZoom = 1.0
)
