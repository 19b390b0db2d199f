package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ixperf/internal/index"
	"ixperf/internal/logging"
	"ixperf/internal/monitoring"
	"ixperf/internal/pipeline"
	"ixperf/internal/tracing"
)

type runOptions struct {
	profile string
	seed    uint64
	json    bool
	out     string
	index   string
	serve   bool
	env     string
	trace   string
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the initial load and the incremental phase",
		Long: `Run loads the index, runs the incremental mix and prints the report.

A zero seed, in the profile or on the command line, is replaced by a
clock-derived one; the seed in effect is part of the report so the run can
be repeated with --seed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.profile, "profile", "", "YAML profile (defaults apply when empty)")
	f.Uint64Var(&o.seed, "seed", 0, "Workload seed, overrides the profile")
	f.BoolVar(&o.json, "json", false, "Print the report as JSON")
	f.StringVar(&o.out, "out", "", "Persist the report as JSON to this file")
	f.StringVar(&o.index, "index", "", "Index under test, overrides the profile")
	f.BoolVar(&o.serve, "serve", false, "Expose status, report and metrics while running")
	f.StringVar(&o.env, "env", "", "Logging preset: development, ci, test or quiet")
	f.StringVar(&o.trace, "trace", "", "Export run, phase and task spans: console or otlp")
	return cmd
}

func runBenchmark(cmd *cobra.Command, o *runOptions) error {
	cfg, err := loadProfile(o.profile)
	if err != nil {
		return err
	}

	if o.env != "" {
		logging.SetupEnvironmentLogging(cfg, o.env)
	}
	if cmd.Flags().Changed("seed") {
		cfg.Generator.Seed = o.seed
	}
	if o.index != "" {
		cfg.Index.Type = o.index
	}
	if o.json {
		cfg.Ixperf.Output = "json"
	}
	if o.out != "" {
		cfg.Ixperf.ReportFile = o.out
	}
	if o.serve {
		cfg.Server.Enabled = true
	}
	if o.trace != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = o.trace
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.ResolveSeed()

	logger := logging.NewLogger(&cfg.Logging)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRunID(ctx, logging.GenerateRunID())

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	tracer, err := tracing.New(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	idx, err := index.New(ctx, cfg.Index)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer idx.Close()
	logger.IndexEvent(ctx, "opened", cfg.Index.Type, map[string]interface{}{
		"key_type":   cfg.Ixperf.KeyType,
		"value_type": cfg.Ixperf.ValueType,
		"seed":       cfg.Generator.Seed,
	})

	metrics := monitoring.NewMetrics()
	p := pipeline.New(idx, opts, logger, pipeline.MultiReporter(pipeline.LogReporter{Logger: logger}, metrics))

	if cfg.Server.Enabled {
		srv := monitoring.NewServer(cfg.Server, p, metrics, logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to stop monitoring server")
			}
		}()
		go func() {
			select {
			case err := <-srv.Errors():
				logger.WithError(err).Error("Monitoring server failed")
			case <-ctx.Done():
			}
		}()
	}

	report, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed (seed %d): %w", cfg.Generator.Seed, err)
	}

	snap := report.Snapshot()
	rendered, err := snap.Render(cfg.Ixperf.Output)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)

	if cfg.Ixperf.ReportFile != "" {
		if err := pipeline.WriteReportFile(cfg.Ixperf.ReportFile, snap); err != nil {
			return err
		}
		logger.Info("Report written", "file", cfg.Ixperf.ReportFile)
	}
	return nil
}
