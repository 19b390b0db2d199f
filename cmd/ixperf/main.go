// Command ixperf benchmarks ordered key-value indexes with a seeded,
// reproducible workload and reports per-operation latency statistics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ixperf/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ixperf",
		Short: "Benchmark ordered key-value indexes",
		Long: `ixperf drives an index through an initial load and an incremental
read/write mix generated from a seed, then reports per-operation counts,
outcomes and sampled latency percentiles.

Indexes: btree, snapshot, badger, redis
Key and value types: u64, i64, i32, array, bytes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newReportCmd(), newCompareCmd(), newValidateCmd())
	return root
}

// loadProfile reads a YAML profile, or the defaults when path is empty
func loadProfile(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
