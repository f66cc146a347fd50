package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Load the configuration (defaults merged with --config) and report every
problem found, without running anything.

Examples:
  contagion validate                   # check the embedded defaults
  contagion validate --config flu.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := cfg.Validate(); err != nil {
				var joined interface{ Unwrap() []error }
				if errors.As(err, &joined) {
					for _, e := range joined.Unwrap() {
						fmt.Fprintf(out, "  - %v\n", e)
					}
				}
				return fmt.Errorf("configuration has problems: %w", err)
			}

			fmt.Fprintf(out, "config OK: %d simulations of %d people over %d days\n",
				cfg.Simulation.NumSimulations, cfg.Simulation.NumPeople, cfg.Simulation.NumDays)
			return nil
		},
	}
}
