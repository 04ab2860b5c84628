package pipeline

const (
	// Producer channel depths. Small on purpose: backpressure keeps the
	// in-flight window bounded by the correlation and smoothing windows.
	frameChanBuffer = 8
	audioChanBuffer = 8

	// Consecutive frame decode failures tolerated before the run aborts.
	maxConsecutiveDecodeErrs = 10

	// Chunk size handed out by the in-memory audio source, in samples.
	pcmChunkSamples = 1024
)
