// Package resolve decides, once per tick, which face track is the active
// speaker. The primary evidence is the correlation between a track's mouth
// openness and the audio energy envelope over a sliding window; diarization
// labels, when present, contribute a soft bias. Hysteresis and a minimum
// hold keep the decision from flapping between similar candidates.
package resolve

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cliplab/autoframe/internal/diar"
	"github.com/cliplab/autoframe/internal/track"
)

// Evidence breaks a decision's confidence into its inputs.
type Evidence struct {
	Correlation    float64 `json:"correlation"`
	VoicedFraction float64 `json:"voiced_fraction"`
	Energy         float64 `json:"energy"`
	DiarBias       float64 `json:"diar_bias"`
	RegionBias     float64 `json:"region_bias"`
}

// Decision names the active speaker at one tick. TrackID 0 means no
// speaker cleared the threshold.
type Decision struct {
	Tick       int64         `json:"tick"`
	T          time.Duration `json:"t"`
	TrackID    uint64        `json:"track_id"`
	Confidence float64       `json:"confidence"`
	Evidence   Evidence      `json:"evidence"`
}

// Params tunes the resolver. Zero values are not usable; populate from the
// application config.
type Params struct {
	WindowTicks        int
	HysteresisMargin   float64
	MinHoldTicks       int
	NoSpeakerThreshold float64
	DiarizationWeight  float64
}

// Resolver scores tracks against the audio envelope tick by tick. It is
// not safe for concurrent use.
type Resolver struct {
	params     Params
	timeline   *diar.Timeline
	frameWidth float64

	mouth  map[uint64][]float64
	energy []float64
	voiced []bool

	tick       int64
	incumbent  uint64
	lastSwitch int64
}

// NewResolver creates a resolver. timeline may be nil when diarization is
// disabled; frameWidth is the source width in pixels, used to normalize
// face positions for region biasing.
func NewResolver(params Params, timeline *diar.Timeline, frameWidth float64) *Resolver {
	return &Resolver{
		params:     params,
		timeline:   timeline,
		frameWidth: frameWidth,
		mouth:      make(map[uint64][]float64),
	}
}

type candidate struct {
	view     track.View
	score    float64
	evidence Evidence
}

// Observe ingests one tick of evidence and returns the decision for it.
// energy and voiced describe the audio over the tick.
func (r *Resolver) Observe(snap track.Snapshot, energy float64, voiced bool) Decision {
	r.push(snap, energy, voiced)

	cands := make([]candidate, 0, len(snap.Views))
	for _, v := range snap.Views {
		cands = append(cands, r.score(v, snap.T, len(snap.Views) == 1))
	}
	rank(cands)

	winner := r.elect(cands)

	d := Decision{Tick: r.tick, T: snap.T}
	if winner != nil && winner.score >= r.params.NoSpeakerThreshold {
		d.TrackID = winner.view.ID
		d.Confidence = clamp01(winner.score)
		d.Evidence = winner.evidence
		r.learnRegion(winner.view, snap.T)
	}
	r.tick++
	return d
}

// push appends the tick's observations to the sliding windows and drops
// history for tracks no longer in the arena.
func (r *Resolver) push(snap track.Snapshot, energy float64, voiced bool) {
	n := r.params.WindowTicks
	r.energy = pushRing(r.energy, energy, n)
	r.voiced = pushRing(r.voiced, voiced, n)

	seen := make(map[uint64]bool, len(snap.Views))
	for _, v := range snap.Views {
		seen[v.ID] = true
		r.mouth[v.ID] = pushRing(r.mouth[v.ID], v.Mouth, n)
	}
	for id := range r.mouth {
		if !seen[id] {
			delete(r.mouth, id)
		}
	}
}

// score computes one track's activity score for the current tick.
func (r *Resolver) score(v track.View, t time.Duration, sole bool) candidate {
	mouth := r.mouth[v.ID]
	// Align the tail of both windows; a young track has less history
	// than the energy ring.
	energy := r.energy[len(r.energy)-len(mouth):]
	voiced := r.voiced[len(r.voiced)-len(mouth):]

	var m, e []float64
	anyVoice := false
	for i := range mouth {
		if voiced[i] {
			m = append(m, mouth[i])
			e = append(e, energy[i])
			anyVoice = true
		}
	}

	ev := Evidence{VoicedFraction: fraction(len(m), len(mouth))}
	if len(r.energy) > 0 {
		ev.Energy = r.energy[len(r.energy)-1]
	}

	score := 0.0
	if len(m) >= 2 && ev.VoicedFraction >= minVoicedFraction {
		corr := stat.Correlation(m, e, nil)
		if !math.IsNaN(corr) && corr > 0 {
			ev.Correlation = corr
			ramp := fraction(len(mouth), minWindowTicks)
			if ramp > 1 {
				ramp = 1
			}
			score = corr * ev.VoicedFraction * ramp
		}
	}

	// With a single face on screen, any voice is attributed to it even
	// when lip sync is inconclusive.
	if sole && anyVoice && score < singleFaceFloor {
		score = singleFaceFloor
	}

	if r.timeline != nil && r.frameWidth > 0 {
		if label := r.timeline.At(t); label != "" {
			ev.RegionBias = r.timeline.RegionBias(label, v.Box.Center().X/r.frameWidth)
			ev.DiarBias = r.params.DiarizationWeight * ev.RegionBias
			score += ev.DiarBias
		}
	}

	return candidate{view: v, score: score, evidence: ev}
}

// elect applies hysteresis and the minimum hold to the ranked candidates.
// Incumbency survives quiet ticks so a challenger cannot dodge the hold by
// waiting out a brief lull, but an incumbent that left the arena frees the
// election immediately.
func (r *Resolver) elect(cands []candidate) *candidate {
	var inc *candidate
	if r.incumbent != 0 {
		for i := range cands {
			if cands[i].view.ID == r.incumbent {
				inc = &cands[i]
				break
			}
		}
		if inc == nil {
			r.incumbent = 0
		}
	}

	var best *candidate
	if len(cands) > 0 && cands[0].score >= r.params.NoSpeakerThreshold {
		best = &cands[0]
	}

	if inc == nil {
		if best != nil {
			r.incumbent = best.view.ID
			r.lastSwitch = r.tick
		}
		return best
	}
	if best != nil && best.view.ID != inc.view.ID &&
		best.score > inc.score*(1+r.params.HysteresisMargin) &&
		r.tick-r.lastSwitch >= int64(r.params.MinHoldTicks) {
		r.incumbent = best.view.ID
		r.lastSwitch = r.tick
		return best
	}
	// The incumbent may be below threshold this tick; the caller emits
	// no speaker but incumbency holds.
	return inc
}

// learnRegion feeds a confident decision back into the diarization region
// model.
func (r *Resolver) learnRegion(v track.View, t time.Duration) {
	if r.timeline == nil || r.frameWidth <= 0 {
		return
	}
	if label := r.timeline.At(t); label != "" {
		r.timeline.ObserveRegion(label, v.Box.Center().X/r.frameWidth)
	}
}

// rank orders candidates by score, breaking ties by larger face area, then
// lower track id.
func rank(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if aa, ba := a.view.Box.Area(), b.view.Box.Area(); aa != ba {
			return aa > ba
		}
		return a.view.ID < b.view.ID
	})
}

func pushRing[T any](ring []T, v T, n int) []T {
	ring = append(ring, v)
	if len(ring) > n {
		ring = ring[len(ring)-n:]
	}
	return ring
}

func fraction(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
