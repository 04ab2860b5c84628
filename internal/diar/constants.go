package diar

const (
	// EMA weight for new region observations.
	regionAlpha = 0.1

	// Normalized horizontal distance at which the region bias reaches
	// zero.
	regionSpread = 0.5
)
