package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List files visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			files, err := c.ListFiles(cmd.Context(), models.FileStatus(status))
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No files")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Vehicle", "Status", "Options", "Credits", "Created"},
				fileRows(files),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only files in this status")
	return cmd
}

func fileRows(files []models.FileRecord) [][]string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		options := make([]string, 0, len(f.Options))
		for name := range f.Options {
			options = append(options, name)
		}
		sort.Strings(options)
		vehicle := strings.TrimSpace(f.Vehicle.Make + " " + f.Vehicle.Model)
		if vehicle == "" {
			vehicle = "-"
		}
		rows = append(rows, []string{
			f.ID,
			vehicle,
			string(f.Status),
			strings.Join(options, ", "),
			strconv.Itoa(f.TotalCredits),
			formatTime(f.CreatedAt),
		})
	}
	return rows
}
