package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/dipper/internal/app"
	"github.com/newthinker/dipper/internal/config"
	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "dipper",
	Short: "dipper - buy-the-dip rule evaluator and simulator",
	Long: `dipper watches one ticker and buys a fixed amount when yesterday's close
falls to a fraction of its rolling maximum, at most once per spacing period.
It can also replay the rule over history.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// setup loads config and builds the logger and app shared by every command.
func setup() (*app.App, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log, err := logger.New(debug || cfg.Log.Development, level)
	if err != nil {
		return nil, nil, err
	}
	if cfgFile == "" {
		log.Debug("no config file specified, using defaults and environment")
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, fmt.Errorf("initializing: %w", err)
	}
	return a, log, nil
}

// parseDay parses a YYYY-MM-DD flag, defaulting to today.
func parseDay(value string) (time.Time, error) {
	if value == "" {
		return core.Day(time.Now()), nil
	}
	d, err := core.ParseDate(value)
	if err != nil {
		return time.Time{}, err
	}
	return d, nil
}
