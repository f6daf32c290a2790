package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/newthinker/dipper/internal/backtest"
	"github.com/newthinker/dipper/internal/core"
	"github.com/spf13/cobra"
)

var (
	backtestFrom   string
	backtestTo     string
	backtestPeriod string
	backtestMode   string
	backtestSave   bool
	backtestList   bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay the buy rule over historical data",
	Long: `Simulate the strategy between two dates. "sessions" mode tracks dip
sessions under a monthly budget; "daily" mode replays the daily evaluator.
The start is either --from or a --period counted back from --to (1y, 6m, 4w
or 90d). --to defaults to today.`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "Start date YYYY-MM-DD")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "End date YYYY-MM-DD (default today)")
	backtestCmd.Flags().StringVar(&backtestPeriod, "period", "", "Relative period before --to, e.g. 1y, 6m, 4w, 90d")
	backtestCmd.Flags().StringVar(&backtestMode, "mode", string(backtest.ModeSessions), "Simulation mode: sessions or daily")
	backtestCmd.Flags().BoolVar(&backtestSave, "save", false, "Persist the resulting sessions (sessions mode)")
	backtestCmd.Flags().BoolVar(&backtestList, "transactions", false, "List every simulated transaction")

	backtestCmd.MarkFlagsOneRequired("from", "period")
	backtestCmd.MarkFlagsMutuallyExclusive("from", "period")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	mode, err := backtest.ParseMode(backtestMode)
	if err != nil {
		return err
	}
	toDate, err := parseDay(backtestTo)
	if err != nil {
		return fmt.Errorf("invalid to date: %w", err)
	}
	var fromDate time.Time
	if backtestPeriod != "" {
		fromDate, err = periodStart(backtestPeriod, toDate)
	} else {
		fromDate, err = core.ParseDate(backtestFrom)
	}
	if err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}

	a, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	res, err := a.Backtest(cmd.Context(), mode, fromDate, toDate)
	if err != nil {
		return err
	}

	fmt.Println("=== dipper backtest ===")
	fmt.Printf("Ticker:   %s\n", res.Ticker)
	fmt.Printf("Mode:     %s\n", res.Mode)
	fmt.Printf("Period:   %s to %s\n", res.StartDate.Format(core.DateLayout), res.EndDate.Format(core.DateLayout))
	fmt.Println()

	s := res.Stats
	fmt.Printf("Evaluations:        %d\n", s.TotalEvaluations)
	fmt.Printf("Trigger days:       %d\n", s.TriggerConditionsMet)
	fmt.Printf("Investments:        %d (%.1f%% of trigger days)\n", s.InvestmentsExecuted, s.ExecutionRate()*100)
	fmt.Printf("Blocked:            %d\n", s.BlockedByConstraint)
	if mode == backtest.ModeSessions {
		fmt.Printf("Skipped, recovered: %d\n", s.SkippedRecovered)
		fmt.Printf("Sessions:           %d\n", len(res.Sessions))
	}
	fmt.Println()

	sum := res.Summary
	fmt.Printf("Total invested:     %.2f\n", sum.TotalInvested)
	fmt.Printf("Total shares:       %.4f\n", sum.TotalShares)
	fmt.Printf("Average price:      %.2f\n", sum.AveragePrice)
	fmt.Printf("Final price:        %.2f\n", res.FinalPrice)
	fmt.Printf("Final value:        %.2f\n", res.Final.CurrentValue)
	fmt.Printf("Return:             %.2f (%.2f%%)\n", res.Final.TotalReturn, res.Final.PercentageReturn*100)

	if backtestList && len(res.Transactions) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tPRICE\tAMOUNT\tSHARES\tSESSION")
		for _, t := range res.Transactions {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.4f\t%s\n", t.Date.Format(core.DateLayout), t.Price, t.Amount, t.Shares, t.SessionID)
		}
		w.Flush()
	}

	if backtestSave {
		if mode != backtest.ModeSessions {
			return fmt.Errorf("--save only applies to sessions mode")
		}
		if !a.SaveSessions(res.Sessions) {
			return fmt.Errorf("failed to save sessions")
		}
		fmt.Printf("\nSaved %d sessions\n", len(res.Sessions))
	}
	return nil
}

// periodStart counts a relative period such as 1y, 6m, 4w or 90d back
// from end.
func periodStart(period string, end time.Time) (time.Time, error) {
	if len(period) < 2 {
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
	n, err := strconv.Atoi(period[:len(period)-1])
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
	switch period[len(period)-1] {
	case 'y':
		return end.AddDate(-n, 0, 0), nil
	case 'm':
		return end.AddDate(0, -n, 0), nil
	case 'w':
		return end.AddDate(0, 0, -7*n), nil
	case 'd':
		return end.AddDate(0, 0, -n), nil
	}
	return time.Time{}, fmt.Errorf("invalid period %q (use y, m, w or d)", period)
}
