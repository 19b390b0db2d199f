package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ixperf/internal/pipeline"
	"ixperf/internal/workload"
)

func newValidateCmd() *cobra.Command {
	var (
		profile string
		show    bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a profile without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProfile(profile)
			if err != nil {
				return err
			}
			if _, err := pipeline.OptionsFromConfig(cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "profile ok: index=%s key=%s value=%s\n",
				cfg.Index.Type, cfg.Ixperf.KeyType, cfg.Ixperf.ValueType)
			fmt.Fprintf(out, "initial load: %s by %d loaders\n", workload.LoadQuotas(cfg.Generator), max(cfg.Concurrency.Loaders, 1))
			fmt.Fprintf(out, "incremental: %s\n", workload.IncrementalQuotas(cfg.Generator))
			if show {
				fmt.Fprint(out, cfg.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "YAML profile to check")
	cmd.Flags().BoolVar(&show, "print", false, "Print the effective configuration")
	return cmd
}
