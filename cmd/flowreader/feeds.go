package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/five82/flowreader/internal/app"
	"github.com/five82/flowreader/internal/flowapi"
)

func clientFor(opts *app.Options) (*flowapi.Client, error) {
	cfg, err := app.LoadConfig(*opts)
	if err != nil {
		return nil, err
	}
	return app.NewClient(cfg)
}

func newFeedsCmd(opts *app.Options) *cobra.Command {
	feeds := &cobra.Command{
		Use:   "feeds",
		Short: "List and manage feed subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := clientFor(opts)
			if err != nil {
				return err
			}
			list, err := client.ListFeeds(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderFeeds(list))
			return nil
		},
	}

	feeds.AddCommand(
		&cobra.Command{
			Use:   "add <url>",
			Short: "Subscribe to a feed",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := clientFor(opts)
				if err != nil {
					return err
				}
				feed, err := client.AddFeed(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", feed.DisplayTitle(), feed.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show one feed",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := clientFor(opts)
				if err != nil {
					return err
				}
				feed, err := client.GetFeed(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderFeeds([]flowapi.Feed{feed}))
				if feed.Description != "" {
					fmt.Fprintln(cmd.OutOrStdout(), feed.Description)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:     "rm <id>",
			Aliases: []string{"delete"},
			Short:   "Unsubscribe from a feed",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := clientFor(opts)
				if err != nil {
					return err
				}
				if err := client.DeleteFeed(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <id> <title>",
			Short: "Change a feed's title",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := clientFor(opts)
				if err != nil {
					return err
				}
				feed, err := client.RenameFeed(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", feed.ID, feed.DisplayTitle())
				return nil
			},
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Ask the server to poll every feed now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, err := clientFor(opts)
				if err != nil {
					return err
				}
				msg, err := client.RefreshFeeds(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "mark-read [id]",
			Short: "Mark every article of a feed, or of all feeds, read",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := clientFor(opts)
				if err != nil {
					return err
				}
				var msg string
				if len(args) == 1 {
					msg, err = client.MarkAllRead(cmd.Context(), args[0])
				} else {
					msg, err = client.MarkAllReadGlobal(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "import <file.opml>",
			Short: "Import subscriptions from an OPML file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := clientFor(opts)
				if err != nil {
					return err
				}
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()

				res, err := client.ImportOPML(cmd.Context(), filepath.Base(args[0]), f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "imported %d, skipped %d\n", res.Imported, res.Skipped)
				for _, e := range res.Errors {
					fmt.Fprintf(out, "  error: %s\n", e)
				}
				return nil
			},
		},
	)
	return feeds
}

func renderFeeds(feeds []flowapi.Feed) string {
	if len(feeds) == 0 {
		return "no feeds"
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "UNREAD", "LAST FETCHED", "ERROR")
	for _, f := range feeds {
		fetched := "never"
		if f.LastFetchedAt != nil {
			fetched = f.LastFetchedAt.Local().Format(time.DateTime)
		}
		t.Row(f.ID, f.DisplayTitle(), strconv.Itoa(f.UnreadCount), fetched, f.FetchError)
	}
	return t.String()
}
