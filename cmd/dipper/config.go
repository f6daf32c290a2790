package main

import (
	"fmt"
	"path/filepath"

	"github.com/newthinker/dipper/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Load and validate a config file without running anything",
	Long: `Load the config the same way every command does (file, defaults and
DIPPER_* environment) and report the first problem found. The file may be
given as an argument or with --config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	source := path
	if source == "" {
		source = "defaults and environment"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config OK (%s)\n", source)
	fmt.Fprintf(out, "  ticker:   %s\n", cfg.Strategy.Ticker)
	fmt.Fprintf(out, "  trigger:  %.2f of the %d day high\n", cfg.Strategy.PercentageTrigger, cfg.Strategy.RollingWindowDays)
	fmt.Fprintf(out, "  amount:   %.2f every %d days at most\n", cfg.Strategy.MonthlyDCAAmount, cfg.Strategy.MinSpacingDays)
	fmt.Fprintf(out, "  state:    %s\n", filepath.Join(cfg.DataDir(), cfg.Storage.StateFile))
	fmt.Fprintf(out, "  schedule: %s\n", cfg.Monitor.Schedule)
	return nil
}
