package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/techstock/internal/holdings"
)

// exitCmd represents the exit command
var exitCmd = &cobra.Command{
	Use:   "exit",
	Short: "Evaluate exit rules over the holdings registry",
	Long: `Loads the holdings CSV and runs the exit priority chain over each
position: emergency (red market + losing), hard stop loss, RSI
take-profit, MA20 trend break.

At most one signal is produced per holding; the most urgent rule wins.

Example:
  go run ./cmd/techstock exit
  go run ./cmd/techstock exit --holdings my_holdings.csv`,
	RunE: runExit,
}

var exitHoldingsFile string

func init() {
	rootCmd.AddCommand(exitCmd)

	exitCmd.Flags().StringVar(&exitHoldingsFile, "holdings", "", "holdings CSV file (default: HOLDINGS_FILE env)")
}

func runExit(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Exit Signal Scan ===")

	deps, err := initPipeline()
	if err != nil {
		return err
	}

	path := exitHoldingsFile
	if path == "" {
		path = deps.cfg.HoldingsFile
	}

	book, err := holdings.Load(path)
	if err != nil {
		return fmt.Errorf("load holdings: %w", err)
	}
	if len(book) == 0 {
		fmt.Println("\nNo holdings registered, nothing to evaluate.")
		fmt.Println("Set HOLDINGS_FILE or pass --holdings with a CSV registry.")
		return nil
	}

	ctx := cmd.Context()

	market := deps.market.Check(ctx)
	sigs := deps.exits.Evaluate(ctx, book, market)

	fmt.Printf("\n📋 %d holding(s), %d exit signal(s)\n", len(book), len(sigs))

	if len(sigs) == 0 {
		fmt.Println("\n✅ All positions healthy, nothing to do.")
		return nil
	}

	fmt.Println()
	for _, s := range sigs {
		fmt.Printf("[%s] %s (%s) %s\n", s.UrgencyColor, s.Name, s.Code, s.ExitType)
		fmt.Printf("   Price %.2f  Cost %.2f  PnL %+.2f%%  Stop %.2f\n",
			s.CurrentPrice, s.CostPrice, s.PnLPct*100, s.StopLossPrice)
		fmt.Printf("   → %s\n", s.SuggestedAction)
	}

	return nil
}
