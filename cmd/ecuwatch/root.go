// Command ecuwatch follows ECU file discussions and the notification feed
// from a terminal.
package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var sessionFlag string
	var verbose bool

	ctx := newCommandContext(&sessionFlag, &verbose)

	rootCmd := &cobra.Command{
		Use:           "ecuwatch",
		Short:         "Watch ECU file threads and notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "Session file path (default ~/.config/ecuwatch/session.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log poll errors to stderr")

	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newFilesCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newCommentCommand(ctx))
	rootCmd.AddCommand(newNotificationsCommand(ctx))

	return rootCmd
}
