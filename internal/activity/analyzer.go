// Package activity turns raw audio into a fixed-rate stream of speech
// activity samples. Each sample carries a peak-normalized energy level and
// a voiced flag from a zero-crossing gate, emitted at 100 Hz regardless of
// how the input arrives in chunks.
package activity

import (
	"math"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"

	apperrors "github.com/cliplab/autoframe/internal/errors"
	"github.com/cliplab/autoframe/internal/geom"
)

// Sample is one 10 ms tick of the activity stream.
type Sample struct {
	T      time.Duration
	Energy float64 // peak-normalized RMS in [0,1]
	Voice  bool
}

// Analyzer converts mono PCM chunks into activity samples. Chunk boundaries
// do not affect the output; the analyzer carries partial windows between
// calls. It is not safe for concurrent use.
type Analyzer struct {
	resampler resampling.Resampler
	inputRate int
	buf       []float64
	tick      int64
	peak      float64
}

// NewAnalyzer creates an analyzer for mono input at the given sample rate.
func NewAnalyzer(inputRate int) (*Analyzer, error) {
	a := &Analyzer{inputRate: inputRate, peak: minPeak}
	if inputRate != analysisRate {
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(inputRate),
			OutputRate: float64(analysisRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "resampler %d -> %d Hz", inputRate, analysisRate)
		}
		a.resampler = r
	}
	return a, nil
}

// Process ingests one chunk of samples in [-1,1] and returns the activity
// samples completed by it. A chunk may yield zero samples.
func (a *Analyzer) Process(chunk []float32) ([]Sample, error) {
	in := make([]float64, len(chunk))
	for i, v := range chunk {
		in[i] = float64(v)
	}
	if a.resampler != nil {
		out, err := a.resampler.Process(in)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "resampling audio chunk")
		}
		in = out
	}
	a.buf = append(a.buf, in...)
	return a.drain(), nil
}

// Flush drains the resampler's filter delay and emits a final sample for
// any buffered tail shorter than a full window. Call after the last chunk.
func (a *Analyzer) Flush() ([]Sample, error) {
	if a.resampler != nil {
		// The resampler holds the last few input samples in its filter
		// delay line. Pushing silence through releases them; the padding
		// itself lands below the silence floor.
		pad := make([]float64, a.inputRate*flushPadMs/1000)
		out, err := a.resampler.Process(pad)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "flushing resampler")
		}
		a.buf = append(a.buf, out...)
	}
	out := a.drain()
	if len(a.buf) >= hopSamples {
		out = append(out, a.emit(a.buf))
	}
	a.buf = nil
	return out, nil
}

// drain emits one sample per complete hop while a full window is buffered.
func (a *Analyzer) drain() []Sample {
	var out []Sample
	for len(a.buf) >= windowSamples {
		out = append(out, a.emit(a.buf[:windowSamples]))
		a.buf = a.buf[hopSamples:]
	}
	return out
}

func (a *Analyzer) emit(window []float64) Sample {
	rms := rms(window)
	zcr := zeroCrossingRate(window)

	a.peak *= peakDecay
	if rms > a.peak {
		a.peak = rms
	}
	if a.peak < minPeak {
		a.peak = minPeak
	}

	s := Sample{
		T:      time.Duration(a.tick) * 10 * time.Millisecond,
		Energy: geom.Clamp(rms/a.peak, 0, 1),
		Voice:  rms > silenceFloor && zcr <= maxVoicedZCR,
	}
	a.tick++
	return s
}

func rms(w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(w)))
}

func zeroCrossingRate(w []float64) float64 {
	if len(w) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(w); i++ {
		if (w[i-1] >= 0) != (w[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(w)-1)
}
