package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Read and manage your notification feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listNotifications(cmd, ctx)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listNotifications(cmd, ctx)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			if err := c.MarkNotificationRead(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Marked as read")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			if err := c.MarkAllNotificationsRead(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All notifications marked as read")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			if err := c.DeleteNotification(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted")
			return nil
		},
	})

	return cmd
}

func listNotifications(cmd *cobra.Command, ctx *commandContext) error {
	c, err := ctx.client()
	if err != nil {
		return err
	}
	feed, err := c.Notifications(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderFeed(feed, isTerminal(cmd.OutOrStdout())))
	return nil
}

func renderFeed(feed *notifications.Feed, color bool) string {
	if len(feed.Notifications) == 0 {
		return "No notifications\n"
	}
	header := "Notifications"
	if feed.Badge != "" {
		header += " (" + feed.Badge + " unread)"
	}
	return colorize(header, ansiBold, color) + "\n" + renderTable(
		[]string{"", "ID", "Type", "Message", "File", "Date"},
		notificationRows(feed.Notifications),
		nil,
	)
}

func notificationRows(items []models.Notification) [][]string {
	rows := make([][]string, 0, len(items))
	for _, n := range items {
		marker := ""
		if !n.Read {
			marker = "*"
		}
		file := n.FileID
		if file == "" {
			file = "-"
		}
		rows = append(rows, []string{marker, n.ID, string(n.Type), truncate(n.Message, 60), file, formatTime(n.CreatedAt)})
	}
	return rows
}
