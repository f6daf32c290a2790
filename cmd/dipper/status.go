package main

import (
	"fmt"

	"github.com/newthinker/dipper/internal/core"
	"github.com/spf13/cobra"
)

var statusDate string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the price sits relative to the trigger",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDate, "date", "", "As-of date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	date, err := parseDay(statusDate)
	if err != nil {
		return err
	}

	a, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := a.Status(cmd.Context(), date)
	if err != nil {
		return err
	}

	fmt.Printf("=== %s as of %s ===\n", st.Ticker, st.PriceDate.Format(core.DateLayout))
	fmt.Printf("Current price:     %.2f\n", st.CurrentPrice)
	fmt.Printf("Rolling max:       %.2f (%+.2f%%)\n", st.RollingMax, st.PercentFromMax)
	fmt.Printf("Trigger price:     %.2f (%.2f%% away)\n", st.TriggerPrice, st.DistanceToTrigger)
	fmt.Printf("Recommendation:    %s (%s confidence)\n", st.Recommendation, st.Confidence)
	fmt.Printf("                   %s\n", st.Message)
	fmt.Printf("Investments:       %d\n", st.Investments)
	if st.Blocked {
		fmt.Printf("Spacing:           blocked until %s (%d day minimum)\n",
			st.NextEligible.Format(core.DateLayout), st.MinSpacingDays)
	} else {
		fmt.Printf("Spacing:           clear\n")
	}
	return nil
}
