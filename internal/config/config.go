// Package config handles engine configuration
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	apperrors "github.com/cliplab/autoframe/internal/errors"
)

// Config carries all engine tunables. Values are read from the environment
// with defaults, optionally overridden by a YAML file, and validated once
// before any processing starts.
type Config struct {
	// Output grid
	OutputTickRate float64 // ticks (output frames) per second

	// Feature extraction
	DetectionConfidence float64 // minimum detection confidence
	TrackGraceFrames    int     // coasting frames before a track terminates
	FrameGate           bool    // perceptual-hash gate on near-identical frames
	SidecarURL          string  // landmarker sidecar websocket URL

	// Audio
	SampleRate int // input audio sample rate in Hz

	// Speaker resolution
	CorrelationWindowSec float64 // lip-sync correlation window in seconds
	HysteresisMargin     float64 // relative score advantage required to switch
	MinHoldSec           float64 // minimum time between speaker switches
	NoSpeakerThreshold   float64 // below this combined score the decision is "none"
	DiarizationEnabled   bool
	DiarizationWeight    float64 // weight of the diarization bias term

	// Crop planning
	FaceVerticalPosition float64 // face placement fraction from crop top
	HorizontalMargin     float64 // face width multiplier
	VerticalMargin       float64 // face height multiplier
	MaxZoom              float64 // zoom clamp upper bound (1.0 = full height)
	SmoothingWindow      int     // trailing moving-average length in ticks
	TransitionSec        float64 // speaker-change interpolation duration

	// Debug
	DebugAddr string // websocket debug stream listen address, empty = off
}

// Load builds a Config from environment variables with defaults.
func Load() *Config {
	return &Config{
		OutputTickRate:       getEnvFloat("OUTPUT_TICK_RATE", 30.0),
		DetectionConfidence:  getEnvFloat("DETECTION_CONFIDENCE", 0.5),
		TrackGraceFrames:     getEnvInt("TRACK_GRACE_FRAMES", 10),
		FrameGate:            getEnvBool("FRAME_GATE", true),
		SidecarURL:           getEnv("SIDECAR_URL", "ws://localhost:8765/landmarks"),
		SampleRate:           getEnvInt("SAMPLE_RATE", 16000),
		CorrelationWindowSec: getEnvFloat("CORRELATION_WINDOW_SEC", 0.8),
		HysteresisMargin:     getEnvFloat("HYSTERESIS_MARGIN", 0.15),
		MinHoldSec:           getEnvFloat("MIN_HOLD_SEC", 0.5),
		NoSpeakerThreshold:   getEnvFloat("NO_SPEAKER_THRESHOLD", 0.2),
		DiarizationEnabled:   getEnvBool("DIARIZATION_ENABLED", false),
		DiarizationWeight:    getEnvFloat("DIARIZATION_WEIGHT", 0.25),
		FaceVerticalPosition: getEnvFloat("FACE_VERTICAL_POSITION", 0.35),
		HorizontalMargin:     getEnvFloat("HORIZONTAL_MARGIN", 1.5),
		VerticalMargin:       getEnvFloat("VERTICAL_MARGIN", 2.0),
		MaxZoom:              getEnvFloat("MAX_ZOOM", 2.0),
		SmoothingWindow:      getEnvInt("SMOOTHING_WINDOW", 15),
		TransitionSec:        getEnvFloat("TRANSITION_SEC", 0.4),
		DebugAddr:            getEnv("DEBUG_ADDR", ""),
	}
}

// overrides mirrors Config with optional fields for YAML files.
type overrides struct {
	OutputTickRate       *float64 `yaml:"output_tick_rate"`
	DetectionConfidence  *float64 `yaml:"detection_confidence"`
	TrackGraceFrames     *int     `yaml:"track_grace_frames"`
	FrameGate            *bool    `yaml:"frame_gate"`
	SidecarURL           *string  `yaml:"sidecar_url"`
	SampleRate           *int     `yaml:"sample_rate"`
	CorrelationWindowSec *float64 `yaml:"correlation_window_sec"`
	HysteresisMargin     *float64 `yaml:"hysteresis_margin"`
	MinHoldSec           *float64 `yaml:"min_hold_sec"`
	NoSpeakerThreshold   *float64 `yaml:"no_speaker_threshold"`
	DiarizationEnabled   *bool    `yaml:"diarization_enabled"`
	DiarizationWeight    *float64 `yaml:"diarization_weight"`
	FaceVerticalPosition *float64 `yaml:"face_vertical_position"`
	HorizontalMargin     *float64 `yaml:"horizontal_margin"`
	VerticalMargin       *float64 `yaml:"vertical_margin"`
	MaxZoom              *float64 `yaml:"max_zoom"`
	SmoothingWindow      *int     `yaml:"smoothing_window"`
	TransitionSec        *float64 `yaml:"transition_sec"`
	DebugAddr            *string  `yaml:"debug_addr"`
}

// ApplyFile overlays YAML overrides from path onto the config.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "reading config file %s", path)
	}
	var o overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "parsing config file %s", path)
	}
	applyFloat(&c.OutputTickRate, o.OutputTickRate)
	applyFloat(&c.DetectionConfidence, o.DetectionConfidence)
	applyInt(&c.TrackGraceFrames, o.TrackGraceFrames)
	applyBool(&c.FrameGate, o.FrameGate)
	applyString(&c.SidecarURL, o.SidecarURL)
	applyInt(&c.SampleRate, o.SampleRate)
	applyFloat(&c.CorrelationWindowSec, o.CorrelationWindowSec)
	applyFloat(&c.HysteresisMargin, o.HysteresisMargin)
	applyFloat(&c.MinHoldSec, o.MinHoldSec)
	applyFloat(&c.NoSpeakerThreshold, o.NoSpeakerThreshold)
	applyBool(&c.DiarizationEnabled, o.DiarizationEnabled)
	applyFloat(&c.DiarizationWeight, o.DiarizationWeight)
	applyFloat(&c.FaceVerticalPosition, o.FaceVerticalPosition)
	applyFloat(&c.HorizontalMargin, o.HorizontalMargin)
	applyFloat(&c.VerticalMargin, o.VerticalMargin)
	applyFloat(&c.MaxZoom, o.MaxZoom)
	applyInt(&c.SmoothingWindow, o.SmoothingWindow)
	applyFloat(&c.TransitionSec, o.TransitionSec)
	applyString(&c.DebugAddr, o.DebugAddr)
	return nil
}

// Validate reports inconsistent constraints before processing starts.
func (c *Config) Validate() error {
	switch {
	case c.OutputTickRate <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "output tick rate must be positive, got %v", c.OutputTickRate)
	case c.DetectionConfidence < 0 || c.DetectionConfidence > 1:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "detection confidence must be in [0,1], got %v", c.DetectionConfidence)
	case c.TrackGraceFrames < 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "track grace frames must be non-negative, got %d", c.TrackGraceFrames)
	case c.SampleRate <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "sample rate must be positive, got %d", c.SampleRate)
	case c.CorrelationWindowSec <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "correlation window must be positive, got %v", c.CorrelationWindowSec)
	case c.HysteresisMargin < 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "hysteresis margin must be non-negative, got %v", c.HysteresisMargin)
	case c.MinHoldSec < 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "min hold must be non-negative, got %v", c.MinHoldSec)
	case c.NoSpeakerThreshold < 0 || c.NoSpeakerThreshold > 1:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "no-speaker threshold must be in [0,1], got %v", c.NoSpeakerThreshold)
	case c.DiarizationWeight < 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "diarization weight must be non-negative, got %v", c.DiarizationWeight)
	case c.FaceVerticalPosition <= 0 || c.FaceVerticalPosition >= 1:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "face vertical position must be in (0,1), got %v", c.FaceVerticalPosition)
	case c.HorizontalMargin <= 0 || c.VerticalMargin <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "margins must be positive, got %v/%v", c.HorizontalMargin, c.VerticalMargin)
	case c.MaxZoom < 1:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "max zoom must be >= 1.0, got %v", c.MaxZoom)
	case c.SmoothingWindow < 1:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "smoothing window must be >= 1, got %d", c.SmoothingWindow)
	case c.TransitionSec <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "transition duration must be positive, got %v", c.TransitionSec)
	}
	return nil
}

// CorrelationWindowTicks converts the correlation window to output ticks.
func (c *Config) CorrelationWindowTicks() int {
	n := int(c.CorrelationWindowSec * c.OutputTickRate)
	if n < 2 {
		n = 2
	}
	return n
}

// MinHoldTicks converts the minimum hold duration to output ticks.
func (c *Config) MinHoldTicks() int {
	return int(c.MinHoldSec * c.OutputTickRate)
}

// TransitionTicks converts the transition duration to output ticks.
func (c *Config) TransitionTicks() int {
	n := int(c.TransitionSec * c.OutputTickRate)
	if n < 1 {
		n = 1
	}
	return n
}

func applyFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func applyInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
