package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cliplab/autoframe/internal/activity"
	"github.com/cliplab/autoframe/internal/audio"
	"github.com/cliplab/autoframe/internal/config"
)

func newMonitorCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Print live speech activity from the default microphone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(*cfg)
		},
	}
}

func runMonitor(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	capturer, err := audio.NewCapturer(cfg.SampleRate)
	if err != nil {
		return err
	}
	defer func() { _ = capturer.Close() }()

	analyzer, err := activity.NewAnalyzer(capturer.SampleRate())
	if err != nil {
		return err
	}

	slog.Info("monitoring microphone", "sample_rate", capturer.SampleRate())
	for {
		chunk, err := capturer.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		samples, err := analyzer.Process(chunk)
		if err != nil {
			return err
		}
		for _, s := range samples {
			if s.Voice {
				slog.Info("voice", "t", s.T, "energy", s.Energy)
			} else {
				slog.Debug("quiet", "t", s.T, "energy", s.Energy)
			}
		}
	}
}
