// Package pipeline wires the frame and audio producers to the speaker
// resolver and crop planner. The coordinator is the single join point: two
// producer goroutines feed bounded channels, and the coordinator pairs
// their outputs on the output tick grid, blocking only on the slower side.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cliplab/autoframe/internal/activity"
	"github.com/cliplab/autoframe/internal/config"
	"github.com/cliplab/autoframe/internal/diar"
	apperrors "github.com/cliplab/autoframe/internal/errors"
	"github.com/cliplab/autoframe/internal/landmark"
	"github.com/cliplab/autoframe/internal/plan"
	"github.com/cliplab/autoframe/internal/resolve"
	"github.com/cliplab/autoframe/internal/trace"
	"github.com/cliplab/autoframe/internal/track"
)

// FrameSource yields decoded video frames in timestamp order. Next returns
// io.EOF when the stream ends.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// AudioSource yields mono PCM chunks in [-1,1]. Next returns io.EOF when
// the stream ends.
type AudioSource interface {
	Next(ctx context.Context) ([]float32, error)
	Close() error
}

// TickDebug is one tick of the optional debug tap.
type TickDebug struct {
	RunID    string           `json:"run_id"`
	Tick     int64            `json:"tick"`
	T        time.Duration    `json:"t"`
	Views    []track.View     `json:"views"`
	Decision resolve.Decision `json:"decision"`
	Keyframe plan.Keyframe    `json:"keyframe"`
}

// Options configures a coordinator for one video.
type Options struct {
	Config   *config.Config
	Detector landmark.Detector
	Timeline *diar.Timeline // nil disables the diarization bias
	Width    int            // source frame width in pixels
	Height   int            // source frame height in pixels

	// Debug, when set, receives one TickDebug per tick. Sends never
	// block; ticks are dropped when the consumer lags.
	Debug chan<- TickDebug
}

// Coordinator runs the per-video processing pipeline. One coordinator
// processes one video; no state is shared across runs.
type Coordinator struct {
	opts     Options
	runID    string
	tickDur  time.Duration
	tracker  *track.Tracker
	resolver *resolve.Resolver
	planner  *plan.Planner
}

// New builds a coordinator. The config must have been validated.
func New(opts Options) *Coordinator {
	cfg := opts.Config
	return &Coordinator{
		opts:    opts,
		runID:   uuid.NewString(),
		tickDur: time.Duration(float64(time.Second) / cfg.OutputTickRate),
		tracker: track.New(opts.Detector, cfg.TrackGraceFrames, cfg.FrameGate),
		resolver: resolve.NewResolver(resolve.Params{
			WindowTicks:        cfg.CorrelationWindowTicks(),
			HysteresisMargin:   cfg.HysteresisMargin,
			MinHoldTicks:       cfg.MinHoldTicks(),
			NoSpeakerThreshold: cfg.NoSpeakerThreshold,
			DiarizationWeight:  cfg.DiarizationWeight,
		}, opts.Timeline, float64(opts.Width)),
		planner: plan.NewPlanner(plan.Params{
			Width:                opts.Width,
			Height:               opts.Height,
			TickRate:             int(cfg.OutputTickRate),
			FaceVerticalPosition: cfg.FaceVerticalPosition,
			HorizontalMargin:     cfg.HorizontalMargin,
			VerticalMargin:       cfg.VerticalMargin,
			MaxZoom:              cfg.MaxZoom,
			SmoothingWindow:      cfg.SmoothingWindow,
			TransitionTicks:      cfg.TransitionTicks(),
		}),
	}
}

// RunID identifies this coordinator's run in logs and debug output.
func (c *Coordinator) RunID() string { return c.runID }

type frameResult struct {
	frame track.Snapshot
	err   error
	t     time.Duration
}

type audioResult struct {
	samples []activity.Sample
	err     error
}

// Run drives the pipeline to completion and returns the crop path. On
// cancellation or a fatal decode failure the partial path is returned
// alongside the error; callers distinguish it via Path.Complete.
func (c *Coordinator) Run(ctx context.Context, frames FrameSource, audio AudioSource) (*plan.Path, error) {
	ctx, _ = trace.EnsureContext(ctx)
	ctx, span := trace.StartSpan(ctx, "pipeline.run")
	defer span.End()
	span.SetAttr("run_id", c.runID)

	log := trace.Logger(ctx).With("run_id", c.runID)
	log.Info("pipeline starting", "width", c.opts.Width, "height", c.opts.Height, "tick_rate", c.opts.Config.OutputTickRate)

	defer func() {
		if err := frames.Close(); err != nil {
			log.Warn("closing frame source", "error", err)
		}
		if err := audio.Close(); err != nil {
			log.Warn("closing audio source", "error", err)
		}
		if err := c.tracker.Close(); err != nil {
			log.Warn("closing tracker", "error", err)
		}
	}()

	frameCh := make(chan frameResult, frameChanBuffer)
	audioCh := make(chan audioResult, audioChanBuffer)

	go c.produceFrames(ctx, frames, frameCh)
	go c.produceAudio(ctx, audio, audioCh)

	return c.join(ctx, log, frameCh, audioCh)
}

// produceFrames folds every frame into the tracker and forwards arena
// snapshots. Tracking lives on the producer side so the join loop only
// pairs timestamps.
func (c *Coordinator) produceFrames(ctx context.Context, src FrameSource, out chan<- frameResult) {
	defer close(out)
	ctx, span := trace.StartSpan(ctx, "pipeline.frames")
	defer span.End()
	for {
		f, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			select {
			case out <- frameResult{err: err, t: f.T}:
			case <-ctx.Done():
				return
			}
			continue
		}
		snap, err := c.tracker.Observe(ctx, f.Image, f.T)
		if err != nil {
			snap = track.Snapshot{}
		}
		select {
		case out <- frameResult{frame: snap, err: err, t: f.T}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) produceAudio(ctx context.Context, src AudioSource, out chan<- audioResult) {
	defer close(out)
	ctx, span := trace.StartSpan(ctx, "pipeline.audio")
	defer span.End()
	analyzer, err := activity.NewAnalyzer(c.opts.Config.SampleRate)
	if err != nil {
		out <- audioResult{err: err}
		return
	}
	send := func(r audioResult) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		chunk, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				samples, ferr := analyzer.Flush()
				send(audioResult{samples: samples, err: ferr})
			} else if ctx.Err() == nil {
				send(audioResult{err: err})
			}
			return
		}
		samples, err := analyzer.Process(chunk)
		if !send(audioResult{samples: samples, err: err}) {
			return
		}
	}
}

// join pairs the two producer streams on the tick grid and runs resolver
// and planner sequentially per tick.
func (c *Coordinator) join(ctx context.Context, log *slog.Logger, frameCh <-chan frameResult, audioCh <-chan audioResult) (*plan.Path, error) {
	var (
		snap        track.Snapshot
		haveSnap    bool
		pendingSnap *frameResult

		samples       []activity.Sample
		pendingSample *activity.Sample

		frameDone, audioDone bool
		decodeErrs           int
		lastGoodT            time.Duration
		tick                 int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return c.planner.Partial(), apperrors.Wrap(err, apperrors.CodeCancelled, "pipeline cancelled")
		}
		tickT := time.Duration(tick) * c.tickDur

		// Frames: fold everything at or before this tick, hold the
		// first frame beyond it.
		for !frameDone {
			if pendingSnap != nil {
				if pendingSnap.t > tickT {
					break
				}
				r := *pendingSnap
				pendingSnap = nil
				if r.err != nil {
					decodeErrs++
					log.Warn("frame decode failed, coasting", "t", r.t, "consecutive", decodeErrs, "error", r.err)
					if decodeErrs >= maxConsecutiveDecodeErrs {
						return c.planner.Partial(), apperrors.Wrapf(r.err, apperrors.CodeDecodeFailure, "frame stream unreadable").
							WithMetadata("t", lastGoodT.String())
					}
					continue
				}
				decodeErrs = 0
				snap, haveSnap = r.frame, true
				lastGoodT = r.t
				continue
			}
			select {
			case r, ok := <-frameCh:
				if !ok {
					frameDone = true
				} else {
					pendingSnap = &r
				}
			case <-ctx.Done():
				return c.planner.Partial(), apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "pipeline cancelled")
			}
		}

		// Audio: collect the activity samples covering this tick.
		var (
			energySum float64
			energyN   int
			voiced    bool
		)
		fold := func(s activity.Sample) {
			energySum += s.Energy
			energyN++
			voiced = voiced || s.Voice
		}
		if pendingSample != nil && pendingSample.T <= tickT {
			fold(*pendingSample)
			pendingSample = nil
		}
		for !audioDone && pendingSample == nil {
			if len(samples) > 0 {
				s := samples[0]
				samples = samples[1:]
				if s.T > tickT {
					pendingSample = &s
					break
				}
				fold(s)
				continue
			}
			select {
			case r, ok := <-audioCh:
				if !ok {
					audioDone = true
				} else if r.err != nil {
					return c.planner.Partial(), apperrors.Wrapf(r.err, apperrors.CodeDecodeFailure, "audio stream unreadable").
						WithMetadata("t", tickT.String())
				} else {
					samples = r.samples
				}
			case <-ctx.Done():
				return c.planner.Partial(), apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "pipeline cancelled")
			}
		}

		if frameDone && audioDone && pendingSnap == nil && pendingSample == nil && len(samples) == 0 {
			break
		}

		energy := 0.0
		if energyN > 0 {
			energy = energySum / float64(energyN)
		}

		tickSnap := snap
		tickSnap.T = tickT
		if !haveSnap {
			tickSnap.Views = nil
		}

		d := c.resolver.Observe(tickSnap, energy, voiced)
		kf := c.planner.Observe(d, tickSnap)

		if c.opts.Debug != nil {
			select {
			case c.opts.Debug <- TickDebug{
				RunID:    c.runID,
				Tick:     d.Tick,
				T:        d.T,
				Views:    tickSnap.Views,
				Decision: d,
				Keyframe: kf,
			}:
			default:
			}
		}
		tick++
	}

	path := c.planner.Finalize()
	log.Info("pipeline finished", "ticks", tick, "duration", path.Duration())
	return path, nil
}
