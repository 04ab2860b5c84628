package resolve

const (
	// Voiced fraction of the window below which correlation is not
	// trusted at all.
	minVoicedFraction = 0.2

	// Confidence floor for a lone on-screen face while any voice is
	// detected. A single face with speech is almost always the speaker.
	singleFaceFloor = 0.6

	// Minimum mouth history per track before its correlation counts at
	// full weight, in ticks.
	minWindowTicks = 8
)
