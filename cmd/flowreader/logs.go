package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/five82/flowreader/internal/app"
	"github.com/five82/flowreader/internal/logging"
	"github.com/five82/flowreader/internal/logtail"
)

func newLogsCmd(opts *app.Options) *cobra.Command {
	var (
		lines int
		level string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the end of the flowreader log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(*opts)
			if err != nil {
				return err
			}
			if cfg.LogFile == "" || cfg.LogFile == logging.Stderr {
				return errors.New("no log file configured")
			}
			minLevel, err := zapcore.ParseLevel(level)
			if err != nil {
				return fmt.Errorf("invalid --level: %w", err)
			}
			entries, err := logtail.Tail(cfg.LogFile, lines, minLevel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintln(out, e.String())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of log lines to scan")
	cmd.Flags().StringVar(&level, "level", "info", "minimum level to show")
	return cmd
}
