// Package plan turns the per-tick speaker decision stream into a smooth,
// physically realizable crop path over the source frame. A small state
// machine handles speaker changes and silences; a trailing moving average
// damps residual detection jitter.
package plan

import (
	"time"

	"github.com/cliplab/autoframe/internal/geom"
	"github.com/cliplab/autoframe/internal/resolve"
	"github.com/cliplab/autoframe/internal/track"
)

// Keyframe is one tick of the crop path.
type Keyframe struct {
	Tick    int64         `json:"tick"`
	T       time.Duration `json:"t"`
	Center  geom.Point    `json:"center"`
	Zoom    float64       `json:"zoom"`
	TrackID uint64        `json:"track_id"`
	Crop    geom.Rect     `json:"crop"`
}

// Path is the finished crop path for one video. A path that ends early,
// through cancellation or a decode failure, reports Complete() == false.
type Path struct {
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	TickRate  int        `json:"tick_rate"`
	Keyframes []Keyframe `json:"keyframes"`

	complete bool
}

// Complete reports whether the path covers the whole input.
func (p *Path) Complete() bool { return p.complete }

// Duration returns the timestamp of the last keyframe, or zero for an
// empty path.
func (p *Path) Duration() time.Duration {
	if len(p.Keyframes) == 0 {
		return 0
	}
	return p.Keyframes[len(p.Keyframes)-1].T
}

// Params tunes the planner for one video.
type Params struct {
	Width                int
	Height               int
	TickRate             int
	FaceVerticalPosition float64
	HorizontalMargin     float64
	VerticalMargin       float64
	MaxZoom              float64
	SmoothingWindow      int
	TransitionTicks      int
}

type state int

const (
	stateIdle state = iota
	stateTracking
	stateHolding
	stateTransitioning
)

// target is a raw framing before smoothing and clamping.
type target struct {
	center geom.Point
	zoom   float64
}

// Planner consumes one decision per tick and accumulates the crop path.
// It is exclusively owned by the coordinator; not safe for concurrent use.
type Planner struct {
	params Params

	state   state
	raw     target
	trackID uint64

	transFrom target
	transTick int

	window []target
	path   *Path
}

// NewPlanner creates a planner for a source of the given dimensions.
func NewPlanner(params Params) *Planner {
	p := &Planner{
		params: params,
		raw: target{
			center: geom.Point{X: float64(params.Width) / 2, Y: float64(params.Height) / 2},
			zoom:   neutralZoom,
		},
		path: &Path{
			Width:    params.Width,
			Height:   params.Height,
			TickRate: params.TickRate,
		},
	}
	return p
}

// Observe advances the planner by one tick and appends the resulting
// keyframe. The snapshot must be the same one the decision was made from.
func (p *Planner) Observe(d resolve.Decision, snap track.Snapshot) Keyframe {
	active, ok := findView(snap, d.TrackID)

	switch {
	case d.TrackID == 0 || !ok:
		// Silence, or the decided track raced out of the arena. Freeze
		// rather than drift back to frame center.
		if p.state != stateIdle {
			p.state = stateHolding
		}
	case p.state == stateIdle:
		// First speaker: seed at the face with neutral zoom, then let
		// tracking pull the zoom in.
		p.raw = target{center: p.ideal(active).center, zoom: neutralZoom}
		p.trackID = d.TrackID
		p.state = stateTracking
	case d.TrackID != p.trackID:
		// Confirmed speaker change. Restarting from the current raw
		// value keeps back-to-back changes continuous.
		p.transFrom = p.raw
		p.transTick = 0
		p.trackID = d.TrackID
		p.state = stateTransitioning
	case p.state == stateHolding:
		// The held speaker resumed.
		p.state = stateTracking
	}

	switch p.state {
	case stateTracking:
		ideal := p.ideal(active)
		p.raw.center = geom.LerpPoint(p.raw.center, ideal.center, trackingRate)
		p.raw.zoom += trackingRate * (ideal.zoom - p.raw.zoom)
	case stateTransitioning:
		p.transTick++
		ideal := p.ideal(active)
		f := smoothstep(float64(p.transTick) / float64(p.params.TransitionTicks))
		p.raw.center = geom.LerpPoint(p.transFrom.center, ideal.center, f)
		p.raw.zoom = p.transFrom.zoom + f*(ideal.zoom-p.transFrom.zoom)
		if p.transTick >= p.params.TransitionTicks {
			p.state = stateTracking
		}
	}
	// Idle and Holding leave the raw target untouched.

	return p.emit(d)
}

// ideal computes the unsmoothed ideal framing for a face: wide enough to
// satisfy both margin multipliers at the output aspect, the focus point
// placed at the configured vertical position fraction.
func (p *Planner) ideal(v track.View) target {
	focus := v.Box.Center()
	if v.Points.Valid() {
		focus = v.Points.EyesCenter()
	}

	cropW := v.Box.W * p.params.HorizontalMargin
	if w := v.Box.H * p.params.VerticalMargin * geom.TargetAspect; w > cropW {
		cropW = w
	}
	cropH := cropW / geom.TargetAspect

	zoom := neutralZoom
	if cropH > 0 {
		zoom = float64(p.params.Height) / cropH
	}

	return target{
		center: geom.Point{
			X: focus.X,
			Y: focus.Y + (0.5-p.params.FaceVerticalPosition)*cropH,
		},
		zoom: zoom,
	}
}

// emit smooths the raw target, clamps, and appends one keyframe. The zoom
// clamp runs after the moving average; clamping raw values would feed
// discontinuities back into the filter.
func (p *Planner) emit(d resolve.Decision) Keyframe {
	p.window = append(p.window, p.raw)
	if len(p.window) > p.params.SmoothingWindow {
		p.window = p.window[len(p.window)-p.params.SmoothingWindow:]
	}

	var avg target
	for _, t := range p.window {
		avg.center.X += t.center.X
		avg.center.Y += t.center.Y
		avg.zoom += t.zoom
	}
	n := float64(len(p.window))
	avg.center.X /= n
	avg.center.Y /= n
	avg.zoom /= n

	zoom := geom.Clamp(avg.zoom, neutralZoom, p.params.MaxZoom)
	crop := geom.CropRect(avg.center, zoom, float64(p.params.Width), float64(p.params.Height))

	kf := Keyframe{
		Tick:    d.Tick,
		T:       d.T,
		Center:  crop.Center(),
		Zoom:    zoom,
		TrackID: d.TrackID,
		Crop:    crop,
	}
	p.path.Keyframes = append(p.path.Keyframes, kf)
	return kf
}

// Finalize seals the path as covering the full input and returns it. The
// planner must not be observed afterwards.
func (p *Planner) Finalize() *Path {
	p.path.complete = true
	return p.path
}

// Partial returns the path built so far, marked truncated.
func (p *Planner) Partial() *Path {
	p.path.complete = false
	return p.path
}

func findView(snap track.Snapshot, id uint64) (track.View, bool) {
	if id == 0 {
		return track.View{}, false
	}
	for _, v := range snap.Views {
		if v.ID == id {
			return v, true
		}
	}
	return track.View{}, false
}

// smoothstep is the cubic ease 3t^2 - 2t^3, clamped to [0,1].
func smoothstep(t float64) float64 {
	t = geom.Clamp(t, 0, 1)
	return t * t * (3 - 2*t)
}
