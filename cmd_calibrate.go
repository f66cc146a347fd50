package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/contagion/calibrate"
)

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Fit transmission and death probabilities to a target outcome",
		Long: `Search transmission_prob and death_prob with CMA-ES so that the mean
outcome of a batch matches a target attack rate (fraction ever infected)
and death fraction. The rest of the configuration is taken from --config.

Writes calibrate_log.csv (one row per evaluation) and best_config.yaml to
the output directory.

Examples:
  contagion calibrate --attack-rate 0.6 --death-frac 0.02 --output out
  contagion calibrate --config town.yaml --attack-rate 0.3 --death-frac 0.01 --max-evals 300 --output out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := setupLogger(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			outputDir, _ := cmd.Flags().GetString("output")
			attackRate, _ := cmd.Flags().GetFloat64("attack-rate")
			deathFrac, _ := cmd.Flags().GetFloat64("death-frac")
			maxEvals, _ := cmd.Flags().GetInt("max-evals")
			runs, _ := cmd.Flags().GetInt("runs")
			population, _ := cmd.Flags().GetInt("population")
			seed, _ := cmd.Flags().GetInt64("seed")

			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			logFile, err := os.Create(filepath.Join(outputDir, "calibrate_log.csv"))
			if err != nil {
				return fmt.Errorf("failed to create log file: %w", err)
			}
			defer logFile.Close()

			res, err := calibrate.Run(cmd.Context(), cfg, calibrate.Options{
				Target:     calibrate.Target{AttackRate: attackRate, DeathFrac: deathFrac},
				MaxEvals:   maxEvals,
				Population: population,
				Runs:       runs,
				Seed:       seed,
				Log:        logFile,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			configOutPath := filepath.Join(outputDir, "best_config.yaml")
			if err := res.Config.WriteYAML(configOutPath); err != nil {
				return fmt.Errorf("failed to write best config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Calibration complete after %d evaluations in %s\n", res.Evals, res.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "Best fitness: %.6f\n", res.Fitness)
			for i, spec := range calibrate.NewParamVector().Specs {
				fmt.Fprintf(out, "  %s: %.6f\n", spec.Name, res.Params[i])
			}
			fmt.Fprintf(out, "Best config saved to: %s\n", configOutPath)
			return nil
		},
	}

	cmd.Flags().String("output", "", "Output directory for results (required)")
	cmd.Flags().Float64("attack-rate", 0.5, "Target fraction of the population ever infected")
	cmd.Flags().Float64("death-frac", 0.05, "Target fraction of the population dead at the end")
	cmd.Flags().Int("max-evals", 100, "Maximum number of evaluations")
	cmd.Flags().Int("runs", 8, "Simulations averaged per evaluation")
	cmd.Flags().Int("population", 0, "CMA-ES population size (0 = auto)")
	cmd.Flags().Int64("seed", 42, "Base seed shared by every evaluation")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
