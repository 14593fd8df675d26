// Package cmd defines and implements the CLI commands for the trainwatch
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/distml/trainwatch/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trainwatch",
		Short: "Telemetry aggregation for distributed training runs.",
		Long: `trainwatch collects per-worker progress records from distributed
training jobs and folds them into a single averaged metrics curve per run.
Workers report asynchronously on their own iteration clocks; trainwatch
aligns their histories by position and averages across whoever has reported.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (environment variables with the TRAINWATCH prefix also apply)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}

// loadConfig reads the configuration honoring the --config flag.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
