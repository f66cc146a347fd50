package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/contagion/config"
	"github.com/pthm-cable/contagion/sim"
	"github.com/pthm-cable/contagion/store"
	"github.com/pthm-cable/contagion/telemetry"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch of simulations",
		Long: `Run num_simulations independent simulations and emit every day of each.

Without an output directory, day snapshots are printed to stdout one line
per day. With --output-dir, each run writes run_<n>.txt and the batch
writes counts.csv, perf.csv, config.yaml and, with --sqlite, contagion.db.

Examples:
  contagion run                                   # defaults, snapshots to stdout
  contagion run --people 10000 --days 120 --output-dir out
  contagion run --config flu.yaml --seed 7 --parallelism 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := setupLogger(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBatch(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().String("output-dir", "", "Output directory for run files, CSV logs and config snapshot")
	cmd.Flags().Int64("seed", 0, "RNG seed (0 = time-based)")
	cmd.Flags().Int("simulations", 0, "Number of simulations (0 = use config)")
	cmd.Flags().Int("people", 0, "Population size (0 = use config)")
	cmd.Flags().Int("days", -1, "Days per simulation (-1 = use config)")
	cmd.Flags().Int("parallelism", 0, "Concurrent runs (0 = use config)")
	cmd.Flags().Int("workers", 0, "Per-day workers inside a run (0 = use config)")
	cmd.Flags().Int("max-encounters", -1, "Encounter cap per individual per day (-1 = use config)")
	cmd.Flags().Bool("sqlite", false, "Also write contagion.db to the output directory")
	cmd.Flags().Bool("log-counts", false, "Log each day's counts")

	return cmd
}

// applyRunFlags overrides config fields with the flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.Output.Dir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("simulations") {
		cfg.Simulation.NumSimulations, _ = flags.GetInt("simulations")
	}
	if flags.Changed("people") {
		cfg.Simulation.NumPeople, _ = flags.GetInt("people")
	}
	if flags.Changed("days") {
		cfg.Simulation.NumDays, _ = flags.GetInt("days")
	}
	if flags.Changed("parallelism") {
		cfg.Simulation.Parallelism, _ = flags.GetInt("parallelism")
	}
	if flags.Changed("workers") {
		cfg.Simulation.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("max-encounters") {
		cfg.Encounters.MaxPerDay, _ = flags.GetInt("max-encounters")
	}
	if flags.Changed("sqlite") {
		cfg.Output.SQLite, _ = flags.GetBool("sqlite")
	}
	if flags.Changed("log-counts") {
		cfg.Output.LogCounts, _ = flags.GetBool("log-counts")
	}
	cfg.ComputeDerived()
}

// runBatch executes one batch with the sinks cfg.Output selects.
func runBatch(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) (err error) {
	// Record the effective seed so config.yaml reproduces the batch
	if cfg.Simulation.Seed == 0 {
		cfg.Simulation.Seed = time.Now().UnixNano()
	}

	om, err := telemetry.NewOutputManager(cfg.Output.Dir, cfg.Output, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := om.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output: %w", cerr)
		}
	}()
	if err := om.WriteConfig(cfg); err != nil {
		return fmt.Errorf("writing config snapshot: %w", err)
	}

	var stdoutText *telemetry.TextSink
	if om == nil && cfg.Output.Text {
		stdoutText = telemetry.NewTextSink(stdout)
		if cfg.Simulation.Parallelism > 1 {
			logger.Info("printing to stdout, running simulations sequentially")
			cfg.Simulation.Parallelism = 1
		}
	}

	var db *store.SQLiteStore
	if cfg.Output.SQLite {
		db, err = store.Open(om.DBPath())
		if err != nil {
			return err
		}
		defer db.Close()
	}

	n := cfg.Simulation.NumSimulations
	collectors := make([]*telemetry.Collector, n)
	perfs := make([]*telemetry.PerfCollector, n)
	for i := range collectors {
		collectors[i] = telemetry.NewCollector()
		perfs[i] = telemetry.NewPerfCollector(0)
	}

	batch, err := sim.NewBatch(cfg, sim.Options{
		Seed:        cfg.Simulation.Seed,
		Parallelism: cfg.Simulation.Parallelism,
		Workers:     cfg.Simulation.Workers,
		Logger:      logger,
		TimerFor:    func(run int) sim.PhaseTimer { return perfs[run] },
		SinkFor: func(run int) (sim.Sink, error) {
			extra := []sim.Sink{collectors[run]}
			if stdoutText != nil {
				extra = append(extra, stdoutText)
			}
			if db != nil {
				extra = append(extra, db.Sink())
			}
			return om.RunSink(run, extra...)
		},
	})
	if err != nil {
		return err
	}
	if db != nil {
		if err := db.BeginBatch(ctx, batch.ID(), cfg); err != nil {
			return err
		}
	}

	res, runErr := batch.Run(ctx)

	var stats []telemetry.RunStats
	for _, c := range collectors {
		if c.Started() {
			stats = append(stats, c.Stats())
		}
	}
	logger.Info("batch summary",
		"batch", res.ID,
		"seed", cfg.Simulation.Seed,
		"summary", telemetry.Summarize(stats),
	)

	for run, p := range perfs {
		ps := p.Stats()
		logger.Debug("perf", "run", run, "perf", ps)
		if err := om.WritePerf(run, ps); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}
