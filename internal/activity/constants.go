package activity

const (
	// Internal analysis rate. All input is resampled to this before
	// framing.
	analysisRate = 16000

	// Sample hop and window, in analysis-rate samples. 10 ms hop yields
	// the 100 Hz activity stream; each sample looks at a 30 ms window.
	hopSamples    = analysisRate / 100
	windowSamples = 3 * hopSamples

	// Per-sample decay of the running energy peak. At 100 Hz this halves
	// the peak in roughly 7 seconds of silence.
	peakDecay = 0.999

	// Floor for the running peak so silence does not normalize noise up
	// to full scale.
	minPeak = 0.01

	// RMS below this is unvoiced regardless of the zero-crossing rate.
	silenceFloor = 0.004

	// Zero-crossing rate above this is treated as fricative or noise
	// rather than voiced speech.
	maxVoicedZCR = 0.35

	// Milliseconds of silence pushed through the resampler on Flush to
	// release its filter delay line. Well above the filter length at any
	// supported rate.
	flushPadMs = 50
)
