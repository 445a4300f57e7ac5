package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "techstock",
	Short: "CN tech-stock EOD decision pipeline",
	Long: `techstock - A-share tech sector EOD trading pipeline

Regime gate, sector rotation, hard filter, time-gated buy signals and
a priority exit chain, plus a bear-market-validated backtester.

Usage:
  go run ./cmd/techstock [command]

Examples:
  go run ./cmd/techstock market
  go run ./cmd/techstock signal
  go run ./cmd/techstock backtest run --from 2022-01-01 --to 2024-12-01
  go run ./cmd/techstock api`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy YAML file (default: STRATEGY_FILE env or built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
