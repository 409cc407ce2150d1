// Command flowreader is a terminal client for a self-hosted feed reader.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/flowreader/internal/app"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flowreader: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &app.Options{}

	root := &cobra.Command{
		Use:   "flowreader",
		Short: "Terminal reader for a flowreader server",
		Long: `flowreader browses the articles of a self-hosted feed reader server.

The article list stays in sync with the server through its websocket event
stream; marking articles read or favorite shows up immediately and is rolled
back if the server rejects it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), *opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.config/flowreader/config.toml)")
	flags.StringVar(&opts.PrefsPath, "prefs", "", "preferences file (default ~/.config/flowreader/prefs.toml)")
	flags.StringVar(&opts.Server, "server", "", "server base URL, overrides the config file")
	flags.StringVar(&opts.Session, "session", "", "session token, overrides the config file")
	flags.StringVar(&opts.LogFile, "log-file", "", "log file path, or \"stderr\"")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newWatchCmd(opts),
		newFeedsCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newLogsCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newWatchCmd(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print server notifications as they arrive",
		Long: `Connect to the event stream and print one line per notification until
interrupted. Logs go to stderr unless --log-file is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Watch(cmd.Context(), *opts, cmd.OutOrStdout())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flowreader %s\n", version)
		},
	}
}
