package main

import (
	"fmt"

	"github.com/newthinker/dipper/internal/core"
	"github.com/spf13/cobra"
)

var evaluateDate string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate the buy rule for one day",
	Long:  "Check yesterday's close against the trigger and invest at the day's close when the rule allows it",
	Args:  cobra.NoArgs,
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateDate, "date", "", "Evaluation date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	date, err := parseDay(evaluateDate)
	if err != nil {
		return err
	}

	a, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	res, err := a.EvaluateDay(cmd.Context(), date)
	if err != nil {
		return err
	}

	fmt.Printf("=== %s %s ===\n", res.Ticker, res.Date.Format(core.DateLayout))
	fmt.Printf("Yesterday close: %.2f\n", res.YesterdayPrice)
	fmt.Printf("Today close:     %.2f\n", res.TodayPrice)
	fmt.Printf("Rolling max:     %.2f\n", res.RollingMax)
	fmt.Printf("Trigger price:   %.2f (met: %t)\n", res.TriggerPrice, res.TriggerMet)

	inv, ok := res.Investment()
	if !ok {
		fmt.Printf("Outcome:         skipped (%s)\n", res.Outcome.Label())
		return nil
	}
	fmt.Printf("Outcome:         invested %.2f at %.2f (%.4f shares)\n", inv.Amount, inv.Price, inv.Shares)
	if !res.Persisted {
		return fmt.Errorf("investment executed but could not be saved")
	}
	return nil
}
