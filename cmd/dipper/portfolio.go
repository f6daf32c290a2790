package main

import (
	"fmt"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/portfolio"
	"github.com/spf13/cobra"
)

var portfolioDate string

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Value the recorded investments",
	Args:  cobra.NoArgs,
	RunE:  runPortfolio,
}

func init() {
	portfolioCmd.Flags().StringVar(&portfolioDate, "date", "", "Valuation date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(portfolioCmd)
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	date, err := parseDay(portfolioDate)
	if err != nil {
		return err
	}

	a, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	rep, err := a.Portfolio(cmd.Context(), date)
	if err != nil {
		return err
	}

	fmt.Printf("=== %s portfolio as of %s ===\n", rep.Ticker, rep.Date.Format(core.DateLayout))
	if rep.Summary.Count == 0 {
		fmt.Println("No investments recorded")
		return nil
	}
	fmt.Printf("Investments:    %d (%s to %s)\n", rep.Summary.Count,
		rep.Summary.FirstInvestment.Format(core.DateLayout), rep.Summary.LastInvestment.Format(core.DateLayout))
	fmt.Printf("Average price:  %.2f\n", rep.Summary.AveragePrice)
	fmt.Println()
	printMetrics("Price only", rep.Price, rep.PriceOnly)
	if rep.TotalReturn != nil {
		fmt.Println()
		printMetrics("Total return", rep.AdjustedPrice, *rep.TotalReturn)
	}
	return nil
}

func printMetrics(title string, price float64, m portfolio.Metrics) {
	fmt.Printf("%s @ %.2f\n", title, price)
	fmt.Printf("  Invested:     %.2f\n", m.TotalInvested)
	fmt.Printf("  Shares:       %.4f\n", m.TotalShares)
	fmt.Printf("  Value:        %.2f\n", m.CurrentValue)
	fmt.Printf("  Return:       %.2f (%.2f%%)\n", m.TotalReturn, m.PercentageReturn*100)
}
