package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cliplab/autoframe/internal/config"
	"github.com/cliplab/autoframe/internal/debugserver"
	"github.com/cliplab/autoframe/internal/diar"
	apperrors "github.com/cliplab/autoframe/internal/errors"
	"github.com/cliplab/autoframe/internal/landmark"
	"github.com/cliplab/autoframe/internal/pipeline"
	"github.com/cliplab/autoframe/internal/plan"
)

func newProcessCommand(cfg **config.Config) *cobra.Command {
	var opts processOptions

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Compute a crop path from a recorded detection dump or extracted frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(*cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.detections, "detections", "", "face detection dump (JSONL), one record per frame")
	cmd.Flags().StringVar(&opts.frames, "frames", "", "directory of extracted frames, detected via the landmarker sidecar")
	cmd.Flags().Float64Var(&opts.fps, "fps", 30, "frame rate of the extracted frames")
	cmd.Flags().StringVar(&opts.audio, "audio", "", "audio track (16-bit PCM WAV)")
	cmd.Flags().IntVar(&opts.width, "width", 1920, "source frame width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", 1080, "source frame height in pixels")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "crop path output file, - for stdout")
	cmd.Flags().StringVar(&opts.diarization, "diarization", "", "diarization segments (JSON), optional")
	cmd.Flags().StringVar(&opts.debugListen, "debug-listen", "", "listen address for the websocket debug stream")
	cmd.MarkFlagsOneRequired("detections", "frames")
	cmd.MarkFlagsMutuallyExclusive("detections", "frames")
	_ = cmd.MarkFlagRequired("audio")

	return cmd
}

type processOptions struct {
	detections  string
	frames      string
	fps         float64
	audio       string
	width       int
	height      int
	output      string
	diarization string
	debugListen string
}

func runProcess(cfg *config.Config, opts processOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		detector landmark.Detector
		frames   pipeline.FrameSource
	)
	if opts.frames != "" {
		src, err := newFrameDir(opts.frames, opts.fps)
		if err != nil {
			return err
		}
		sidecar, err := landmark.DialSidecar(ctx, cfg.SidecarURL, cfg.DetectionConfidence)
		if err != nil {
			return err
		}
		detector, frames = sidecar, src
	} else {
		df, err := os.Open(opts.detections)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeDecodeFailure, "opening detection dump")
		}
		replay, err := landmark.NewReplay(df, cfg.DetectionConfidence)
		df.Close()
		if err != nil {
			return err
		}
		detector, frames = replay, pipeline.NewStaticFrames(replay.Timestamps())
	}

	samples, rate, err := readWAV(opts.audio)
	if err != nil {
		return err
	}
	cfg.SampleRate = rate

	var timeline *diar.Timeline
	if opts.diarization != "" {
		sf, err := os.Open(opts.diarization)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeDecodeFailure, "opening diarization segments")
		}
		segments, err := diar.LoadSegments(sf)
		sf.Close()
		if err != nil {
			return err
		}
		if timeline, err = diar.NewTimeline(segments); err != nil {
			return err
		}
		cfg.DiarizationEnabled = true
	}

	if opts.debugListen != "" {
		cfg.DebugAddr = opts.debugListen
	}

	var debugCh chan pipeline.TickDebug
	if cfg.DebugAddr != "" {
		debugCh = make(chan pipeline.TickDebug, 256)
		srv := &http.Server{
			Addr:         cfg.DebugAddr,
			Handler:      debugserver.New(debugCh).Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("debug stream listening", "addr", cfg.DebugAddr)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				slog.Error("debug server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			close(debugCh)
		}()
	}

	coord := pipeline.New(pipeline.Options{
		Config:   cfg,
		Detector: detector,
		Timeline: timeline,
		Width:    opts.width,
		Height:   opts.height,
		Debug:    debugCh,
	})

	path, err := coord.Run(ctx, frames, pipeline.NewPCMAudio(samples))
	if err != nil {
		// A truncated path is still written so callers can inspect it,
		// but the failure is propagated.
		if path != nil && len(path.Keyframes) > 0 {
			if werr := writePath(path, opts.output); werr != nil {
				slog.Error("writing partial crop path", "error", werr)
			}
		}
		return err
	}

	slog.Info("crop path complete", "run_id", coord.RunID(), "keyframes", len(path.Keyframes), "duration", path.Duration())
	return writePath(path, opts.output)
}

// pathEnvelope is the serialized crop path, with completeness explicit so
// downstream renderers can refuse truncated paths.
type pathEnvelope struct {
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	TickRate  int             `json:"tick_rate"`
	Complete  bool            `json:"complete"`
	Keyframes []plan.Keyframe `json:"keyframes"`
}

func writePath(p *plan.Path, outputPath string) error {
	env := pathEnvelope{
		Width:     p.Width,
		Height:    p.Height,
		TickRate:  p.TickRate,
		Complete:  p.Complete(),
		Keyframes: p.Keyframes,
	}

	out := os.Stdout
	if outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "creating output file")
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
