package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ixperf/internal/performance"
	"ixperf/internal/pipeline"
)

func newCompareCmd() *cobra.Command {
	var (
		asJSON bool
		th     = performance.DefaultThresholds()
	)
	cmd := &cobra.Command{
		Use:   "compare <baseline.json> <current.json>",
		Short: "Compare a report against a baseline and fail on regressions",
		Long: `Compare matches phases by name and compares throughput plus the mean
and p99 latency of every operation kind both reports sampled. It exits
non-zero when any metric got worse than its threshold allows.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseline, err := pipeline.ReadReportFile(args[0])
			if err != nil {
				return err
			}
			current, err := pipeline.ReadReportFile(args[1])
			if err != nil {
				return err
			}

			c := performance.Compare(baseline, current, th)
			if asJSON {
				data, err := json.MarshalIndent(c, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), c.Text())
			}
			return c.Err()
		},
	}

	f := cmd.Flags()
	f.BoolVar(&asJSON, "json", false, "Print the comparison as JSON")
	f.Float64Var(&th.Throughput, "throughput-threshold", th.Throughput, "Max acceptable throughput decrease in percent")
	f.Float64Var(&th.Latency, "latency-threshold", th.Latency, "Max acceptable latency increase in percent")
	return cmd
}
