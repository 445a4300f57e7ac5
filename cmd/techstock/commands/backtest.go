package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/techstock/internal/backtest"
	"github.com/wonny/techstock/internal/contracts"
)

// deepHistoryBars is the kline depth fetched for simulation. 1000 daily
// bars is the Eastmoney per-request maximum and covers about four years.
const deepHistoryBars = 1000

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest the pipeline over historical data",
	Long: `Simulates the full pipeline session by session over historical
daily bars: regime gate, sector rotation, entries ranked by strength,
the exit chain, and T+1 settlement.

The 2022-2023 bear market window is always simulated in addition to the
requested range, so the regime gate's protection is validated on every
run.

Example:
  go run ./cmd/techstock backtest run
  go run ./cmd/techstock backtest run --from 2022-06-01 --to 2024-06-01`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a backtest",
		RunE:  runBacktest,
	}

	// Flags
	backtestFrom string
	backtestTo   string
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	backtestRunCmd.Flags().StringVar(&backtestFrom, "from", "", "start date (YYYY-MM-DD, default from strategy)")
	backtestRunCmd.Flags().StringVar(&backtestTo, "to", "", "end date (YYYY-MM-DD, default from strategy)")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Backtest ===")

	deps, err := initPipeline()
	if err != nil {
		return err
	}

	fmt.Println("\n🚀 Running simulation (fetching history as needed)...")
	result, err := deps.engine.Run(cmd.Context(), backtest.Request{Start: backtestFrom, End: backtestTo})
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	printBacktestResult(result)
	return nil
}

func printBacktestResult(result *contracts.BacktestResult) {
	fmt.Println("\n✅ Backtest Completed")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Println("\n💰 Performance")
	fmt.Printf("Total Return:  %+.2f%%\n", result.TotalReturn*100)
	fmt.Printf("Max Drawdown:  %.2f%%", result.MaxDrawdown*100)
	if result.DrawdownWarning {
		fmt.Print("  ⚠️  exceeds threshold")
	}
	fmt.Println()
	fmt.Printf("Total Trades:  %d\n", result.TotalTrades)
	fmt.Printf("Win Rate:      %.1f%%\n", result.WinRate*100)

	if len(result.PeriodPerformances) > 0 {
		fmt.Println("\n📅 Period Breakdown")
		for _, p := range result.PeriodPerformances {
			fmt.Printf("  %-8s return %+7.2f%%  drawdown %6.2f%%  trades %3d  win %.0f%%\n",
				p.Period, p.Return*100, p.MaxDrawdown*100, p.Trades, p.WinRate*100)
		}
	}

	fmt.Println("\n🐻 Bear Market Validation")
	if result.BearMarketValidated {
		if result.MarketFilterEffective {
			fmt.Println("✅ Market filter effective in the stress window")
		} else {
			fmt.Println("⚠️  Market filter NOT effective in the stress window")
		}
	} else {
		fmt.Println("⚠️  Stress window not covered by the available data")
	}
	fmt.Println(result.BearMarketReport)

	if len(result.DataWarnings) > 0 {
		fmt.Printf("\n⚠️  Data Warnings (%d)\n", len(result.DataWarnings))
		for _, w := range result.DataWarnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	fmt.Println()
}
