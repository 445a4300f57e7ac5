package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// marketCmd represents the market command
var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "Check the market regime gate and sector ranking",
	Long: `Evaluates the regime gate (benchmark close vs MA20, MACD state)
and prints the 20-day sector strength ranking.

A red market vetoes all new entries for the day.

Example:
  go run ./cmd/techstock market`,
	RunE: runMarket,
}

func init() {
	rootCmd.AddCommand(marketCmd)
}

func runMarket(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Market Regime Check ===")

	deps, err := initPipeline()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	status := deps.market.Check(ctx)
	fmt.Println()
	if status.IsGreen {
		fmt.Println("🟢 Market: GREEN (entries allowed)")
	} else {
		fmt.Println("🔴 Market: RED (all entries vetoed)")
	}
	fmt.Printf("   Benchmark: %s (%s)\n", deps.strat.Benchmark.IndexName, deps.strat.Benchmark.IndexCode)
	fmt.Printf("   Close: %.2f  MA20: %.2f  MACD: %s\n", status.Close, status.MA20, status.MACDState)
	fmt.Printf("   Reason: %s\n", status.Reason)

	ranks, err := deps.sectors.Rankings(ctx)
	if err != nil {
		return fmt.Errorf("sector ranking: %w", err)
	}

	fmt.Println("\n📊 Sector Ranking (20-day return)")
	for _, r := range ranks {
		marker := "  "
		if r.IsTradable {
			marker = "✅"
		}
		fmt.Printf("  %s #%d %-22s %+7.2f%%  (%s)\n",
			marker, r.Rank, r.SectorName, r.Return20D*100, r.DataSource)
	}
	fmt.Println("\nTop 2 sectors are tradable today.")

	return nil
}
