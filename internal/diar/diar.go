// Package diar consumes externally produced speaker diarization segments
// and learns where each speaker label tends to appear on screen, so the
// labels can bias face selection without overriding it.
package diar

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	apperrors "github.com/cliplab/autoframe/internal/errors"
	"github.com/cliplab/autoframe/internal/geom"
)

// Segment is one diarized speech span attributed to a speaker label.
type Segment struct {
	Start   time.Duration
	End     time.Duration
	Speaker string
}

// Timeline answers "who does diarization think is speaking at t" and keeps
// a per-speaker estimate of horizontal screen position. It is not safe for
// concurrent use.
type Timeline struct {
	segments []Segment
	cursor   int
	regions  map[string]float64 // speaker -> EMA of normalized x
}

// NewTimeline validates and indexes diarization segments. Segments must be
// sorted by start and non-overlapping.
func NewTimeline(segments []Segment) (*Timeline, error) {
	for i, s := range segments {
		if s.End <= s.Start {
			return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "diarization segment %d: end %v not after start %v", i, s.End, s.Start)
		}
		if s.Speaker == "" {
			return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "diarization segment %d: empty speaker label", i)
		}
		if i > 0 && s.Start < segments[i-1].End {
			return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "diarization segment %d overlaps previous", i)
		}
	}
	return &Timeline{segments: segments, regions: make(map[string]float64)}, nil
}

// At returns the speaker label active at t, or "" when no segment covers t.
func (tl *Timeline) At(t time.Duration) string {
	i := sort.Search(len(tl.segments), func(i int) bool {
		return tl.segments[i].End > t
	})
	if i < len(tl.segments) && tl.segments[i].Start <= t {
		return tl.segments[i].Speaker
	}
	return ""
}

// ObserveRegion folds one confirmed observation of a speaker at normalized
// horizontal position x in [0,1] into that speaker's region estimate.
func (tl *Timeline) ObserveRegion(speaker string, x float64) {
	x = geom.Clamp(x, 0, 1)
	if prev, ok := tl.regions[speaker]; ok {
		tl.regions[speaker] = prev + regionAlpha*(x-prev)
		return
	}
	tl.regions[speaker] = x
}

// RegionBias scores how well a face at normalized horizontal position x
// matches the learned region of the given speaker, in [0,1]. Without any
// history for the speaker the bias is the neutral 0.5.
func (tl *Timeline) RegionBias(speaker string, x float64) float64 {
	center, ok := tl.regions[speaker]
	if !ok {
		return 0.5
	}
	d := geom.Clamp(x, 0, 1) - center
	if d < 0 {
		d = -d
	}
	return geom.Clamp(1-d/regionSpread, 0, 1)
}

// wireSegment is the JSON form of a diarization segment, times in seconds.
type wireSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// LoadSegments parses a JSON array of diarization segments with times in
// seconds.
func LoadSegments(r io.Reader) ([]Segment, error) {
	var wire []wireSegment
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "parsing diarization segments")
	}
	out := make([]Segment, len(wire))
	for i, w := range wire {
		out[i] = Segment{
			Start:   time.Duration(w.Start * float64(time.Second)),
			End:     time.Duration(w.End * float64(time.Second)),
			Speaker: w.Speaker,
		}
	}
	return out, nil
}
