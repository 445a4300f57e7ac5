package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/signals"
)

// signalCmd represents the signal command
var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Run the entry pipeline and print buy signals",
	Long: `Runs the full entry pipeline: regime gate, sector rotation, hard
filter and the four signal conditions (trend, RSI band, volume surge,
fundamentals without a material unlock).

Signals generated before 14:45 are pending; at or after 14:45 they are
confirmed for same-day execution in the 14:45-15:00 window.

Example:
  go run ./cmd/techstock signal`,
	RunE: runSignal,
}

func init() {
	rootCmd.AddCommand(signalCmd)
}

func runSignal(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Buy Signal Scan ===")

	deps, err := initPipeline()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	window := deps.signals.WindowStatus()
	switch window.State {
	case contracts.WindowOpen:
		fmt.Printf("⏰ Execution window OPEN, %d minutes remaining\n", window.MinutesRemaining)
	case contracts.WindowPre:
		fmt.Println("⏰ Before confirmation time, signals will be pending")
	case contracts.WindowClosed:
		fmt.Println("⏰ Execution window closed for today")
	}

	market := deps.market.Check(ctx)
	if !market.IsGreen {
		fmt.Printf("\n🔴 Market RED: %s\n", market.Reason)
		fmt.Println("No buy signals today.")
		return nil
	}
	fmt.Printf("\n🟢 Market GREEN: %s\n", market.Reason)

	sigs, err := deps.signals.Generate(ctx, market)
	if err != nil {
		return fmt.Errorf("generate signals: %w", err)
	}

	if len(sigs) == 0 {
		fmt.Println("\nNo stocks qualified today.")
		return nil
	}

	summary := signals.Summarize(sigs)
	fmt.Printf("\n📋 %d signal(s), %d confirmed, avg strength %.1f\n\n",
		summary.Total, summary.Confirmed, summary.AvgStrength)

	for i, s := range sigs {
		status := "PENDING"
		if s.IsConfirmed {
			status = "CONFIRMED"
		}
		fmt.Printf("%d. %s (%s) [%s] strength %.0f %s\n",
			i+1, s.Name, s.Code, s.Sector, s.SignalStrength, status)
		fmt.Printf("   Price %.2f  RSI %.1f  VolRatio %.2fx\n", s.Price, s.RSI, s.VolumeRatio)
		fmt.Printf("   %s\n", strings.Join(s.ConditionsMet, "; "))
	}

	return nil
}
