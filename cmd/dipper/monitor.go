package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/dipper/internal/api"
	"github.com/newthinker/dipper/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var monitorRunNow bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the daily evaluation on a schedule and serve metrics",
	Args:  cobra.NoArgs,
	RunE:  runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorRunNow, "run-now", false, "Evaluate today once at startup")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	a, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	cfg := a.Config()

	sched, err := scheduler.New(ctx, cfg.Monitor.Schedule, cfg.Location(), a.RunScheduled, log)
	if err != nil {
		return err
	}
	server := api.NewServer(api.Config{
		Addr:        cfg.Monitor.MetricsAddr,
		MetricsPath: cfg.Monitor.MetricsPath,
		APIKey:      cfg.Monitor.APIKey,
	}, a, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	if monitorRunNow {
		// Failures are logged by the scheduler
		_ = sched.RunNow()
	}
	sched.Start()

	log.Info("monitor started",
		zap.String("ticker", cfg.Strategy.Ticker),
		zap.String("schedule", cfg.Monitor.Schedule),
		zap.String("timezone", cfg.Monitor.Timezone),
		zap.Time("next_run", sched.Next()),
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down monitor")
	case runErr = <-serverErr:
		if runErr == nil {
			runErr = errors.New("http server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("scheduled evaluation still running at shutdown")
	}
	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutting down server: %w", err)
	}
	return runErr
}
