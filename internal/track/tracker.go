// Package track maintains stable identities for faces across frames. Each
// detected face is assigned to a track by spatial proximity; tracks survive
// short detection gaps by coasting at their last known position.
package track

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/cliplab/autoframe/internal/geom"
	"github.com/cliplab/autoframe/internal/landmark"
)

// View is the per-frame public state of one track.
type View struct {
	ID         uint64
	Box        geom.Rect
	Points     landmark.Set
	Confidence float64
	Mouth      float64
	Coasting   bool
}

// Snapshot is the full arena state at one frame timestamp.
type Snapshot struct {
	T     time.Duration
	Views []View
}

type trackState struct {
	id         uint64
	box        geom.Rect
	points     landmark.Set
	confidence float64
	mouth      float64
	missed     int
}

// Tracker folds per-frame detections into a persistent track arena.
// It is not safe for concurrent use.
type Tracker struct {
	detector    landmark.Detector
	gateEnabled bool
	grace       int

	nextID   uint64
	tracks   []*trackState
	lastHash *goimagehash.ImageHash
	lastDets []landmark.Detection
}

// New creates a tracker over the given detection backend. Tracks missing
// from graceFrames consecutive frames are dropped. When gate is set,
// frames perceptually identical to the previous one reuse its detections
// instead of hitting the backend.
func New(detector landmark.Detector, graceFrames int, gate bool) *Tracker {
	return &Tracker{
		detector:    detector,
		gateEnabled: gate,
		grace:       graceFrames,
		nextID:      1,
	}
}

// Observe ingests one frame and returns the updated arena snapshot.
// The frame image may be nil when detections come from a replay backend;
// the perceptual gate is then bypassed.
func (t *Tracker) Observe(ctx context.Context, frame image.Image, ts time.Duration) (Snapshot, error) {
	dets := t.lastDets
	if frame == nil || !t.shouldSkipDetect(frame) {
		var err error
		dets, err = t.detector.Detect(ctx, frame, ts)
		if err != nil {
			return Snapshot{}, err
		}
		t.lastDets = dets
	}

	t.fold(dets)
	return t.snapshot(ts), nil
}

// shouldSkipDetect computes the frame's perceptual hash and reports whether
// it is near-identical to the previous frame.
func (t *Tracker) shouldSkipDetect(frame image.Image) bool {
	if !t.gateEnabled {
		return false
	}
	hash, err := goimagehash.PerceptionHash(frame)
	if err != nil {
		return false
	}
	if t.lastHash == nil {
		t.lastHash = hash
		return false
	}
	dist, err := t.lastHash.Distance(hash)
	if err != nil {
		t.lastHash = hash
		return false
	}
	if dist <= maxHashDistance {
		return true
	}
	t.lastHash = hash
	return false
}

// fold matches detections to tracks, spawns tracks for the unmatched
// detections, and coasts or expires the unmatched tracks.
func (t *Tracker) fold(dets []landmark.Detection) {
	boxes := make([]geom.Rect, len(t.tracks))
	for i, tr := range t.tracks {
		boxes[i] = tr.box
	}
	assign := match(boxes, dets)

	matched := make([]bool, len(t.tracks))
	for di, ti := range assign {
		if ti < 0 {
			continue
		}
		tr := t.tracks[ti]
		d := dets[di]
		tr.box = d.Box
		tr.points = d.Points
		tr.confidence = d.Confidence
		tr.mouth = landmark.MouthOpenness(d.Points, d.Box)
		tr.missed = 0
		matched[ti] = true
	}

	for di, ti := range assign {
		if ti >= 0 {
			continue
		}
		d := dets[di]
		t.tracks = append(t.tracks, &trackState{
			id:         t.nextID,
			box:        d.Box,
			points:     d.Points,
			confidence: d.Confidence,
			mouth:      landmark.MouthOpenness(d.Points, d.Box),
		})
		t.nextID++
	}

	alive := t.tracks[:0]
	for i, tr := range t.tracks {
		if i < len(matched) && !matched[i] {
			tr.missed++
			if tr.missed > t.grace {
				continue
			}
			tr.confidence *= coastDecay
		}
		alive = append(alive, tr)
	}
	t.tracks = alive
}

func (t *Tracker) snapshot(ts time.Duration) Snapshot {
	views := make([]View, len(t.tracks))
	for i, tr := range t.tracks {
		views[i] = View{
			ID:         tr.id,
			Box:        tr.box,
			Points:     tr.points,
			Confidence: tr.confidence,
			Mouth:      tr.mouth,
			Coasting:   tr.missed > 0,
		}
	}
	return Snapshot{T: ts, Views: views}
}

// Close releases the detection backend.
func (t *Tracker) Close() error {
	return t.detector.Close()
}

// match assigns each detection to at most one track by greedy nearest
// center distance. The result maps detection index to track index, -1 when
// no track lies within the match radius.
func match(tracks []geom.Rect, dets []landmark.Detection) []int {
	assign := make([]int, len(dets))
	for i := range assign {
		assign[i] = -1
	}
	taken := make([]bool, len(tracks))

	for {
		bestDet, bestTrack := -1, -1
		bestDist := math.Inf(1)
		for di, d := range dets {
			if assign[di] >= 0 {
				continue
			}
			for ti, box := range tracks {
				if taken[ti] {
					continue
				}
				dist := geom.Dist(d.Box.Center(), box.Center())
				radius := matchDistanceScale * math.Hypot(box.W, box.H)
				if dist <= radius && dist < bestDist {
					bestDet, bestTrack, bestDist = di, ti, dist
				}
			}
		}
		if bestDet < 0 {
			return assign
		}
		assign[bestDet] = bestTrack
		taken[bestTrack] = true
	}
}
