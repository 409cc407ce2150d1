package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/flowreader/internal/app"
)

func newLoginCmd(opts *app.Options) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and print a session token for the config file",
		Long: `Sign in with email and password. The password is read from the first line
of stdin unless --password is given. On success the session token is printed
in config file syntax.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password required on stdin or via --password")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			client, err := clientFor(opts)
			if err != nil {
				return err
			}
			resp, err := client.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# signed in as %s\n", resp.User.Email)
			fmt.Fprintf(out, "session = %q\n", resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newLogoutCmd(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the configured session on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := clientFor(opts)
			if err != nil {
				return err
			}
			if err := client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCmd(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account the session belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := clientFor(opts)
			if err != nil {
				return err
			}
			user, err := client.Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.Email)
			return nil
		},
	}
}
