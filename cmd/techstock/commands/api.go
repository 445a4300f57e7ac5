package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/techstock/internal/api"
	"github.com/wonny/techstock/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server exposing the decision pipeline.

Endpoints:
  GET  /health                  - Health check
  GET  /metrics                 - Prometheus metrics
  GET  /api/market/status       - Regime gate verdict
  GET  /api/sectors/ranking     - Sector strength ranking
  POST /api/sectors/refresh     - Recompute the ranking
  GET  /api/filter/eligibility  - Hard filter over the pool
  GET  /api/signals/buy         - Buy signal scan
  GET  /api/signals/exit        - Exit chain over holdings
  GET  /api/signals/window      - EOD execution window state
  POST /api/backtest/run        - Run a backtest

Example:
  go run ./cmd/techstock api
  go run ./cmd/techstock api --port 8089`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default: PORT env)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== techstock API Server ===")

	deps, err := initPipeline()
	if err != nil {
		return err
	}

	if apiPort != "" {
		deps.cfg.Port = apiPort
	}

	pipeline := handlers.NewPipelineHandler(
		deps.market, deps.sectors, deps.hard, deps.signals, deps.exits,
		deps.strat, deps.cfg.HoldingsFile, deps.log)
	bt := handlers.NewBacktestHandler(deps.engine, deps.log)

	router := api.NewRouter(pipeline, bt, deps.reg, deps.log)
	server := api.New(deps.cfg, deps.log, router)

	go func() {
		if err := server.Start(); err != nil {
			deps.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", deps.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}
