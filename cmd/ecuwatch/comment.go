package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newCommentCommand(ctx *commandContext) *cobra.Command {
	var image string

	cmd := &cobra.Command{
		Use:   "comment <file-id> [text]",
		Short: "Post a comment, optionally with an image",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID := args[0]
			var text string
			if len(args) > 1 {
				text = strings.TrimSpace(args[1])
			}
			if text == "" && image == "" {
				return errors.New("a comment needs text or --image")
			}

			c, err := ctx.client()
			if err != nil {
				return err
			}
			if image != "" {
				if image, err = filepath.Abs(image); err != nil {
					return err
				}
			}
			posted, err := c.PostComment(cmd.Context(), fileID, text, image)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted comment %s\n", posted.ID)

			if image == "" {
				return nil
			}
			s, err := ctx.ensureSession()
			if err != nil {
				return err
			}
			s.RememberImage(fileID, image)
			return ctx.saveSession()
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Attach an image (jpeg, png, gif, webp or bmp, up to 5 MiB)")
	return cmd
}
