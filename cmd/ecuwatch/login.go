package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var baseURL, token, userID string
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the API address and bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("ECUWATCH_TOKEN")
			}
			baseURL = strings.TrimSpace(baseURL)
			if baseURL == "" {
				return errors.New("--url is required")
			}
			if strings.TrimSpace(token) == "" {
				return errors.New("--token or ECUWATCH_TOKEN is required")
			}

			s, err := ctx.ensureSession()
			if err != nil {
				return err
			}
			s.BaseURL = baseURL
			s.Token = token
			s.UserID = userID

			if !skipCheck {
				c, err := s.Client()
				if err != nil {
					return err
				}
				feed, err := c.Notifications(cmd.Context())
				if err != nil {
					return fmt.Errorf("token check failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in, %d unread notification(s)\n", feed.Unread)
			}
			return ctx.saveSession()
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080/api", "API base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (default $ECUWATCH_TOKEN)")
	cmd.Flags().StringVar(&userID, "user-id", "", "Your user id, used to match your own comments")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Save without calling the API")
	return cmd
}
