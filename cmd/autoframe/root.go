package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cliplab/autoframe/internal/config"
)

func newRootCommand() *cobra.Command {
	var (
		configFlag  string
		verboseFlag bool
		cfg         *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "autoframe",
		Short:         "Active-speaker crop path engine for vertical clips",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verboseFlag {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			cfg = config.Load()
			if configFlag != "" {
				if err := cfg.ApplyFile(configFlag); err != nil {
					return err
				}
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "YAML config override file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newProcessCommand(&cfg))
	rootCmd.AddCommand(newMonitorCommand(&cfg))

	return rootCmd
}
