package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ixperf/internal/pipeline"
)

func newReportCmd() *cobra.Command {
	var (
		asJSON bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "report <report.json>",
		Short: "Render a persisted report without rerunning it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := pipeline.ReadReportFile(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				format = "json"
			}
			out, err := snap.Render(format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&format, "format", "text", "Output mode: text, structured or json")
	return cmd
}
