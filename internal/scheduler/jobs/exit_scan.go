package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/techstock/internal/exits"
	"github.com/wonny/techstock/internal/holdings"
	"github.com/wonny/techstock/internal/marketfilter"
	"github.com/wonny/techstock/pkg/logger"
)

// ExitScanJob evaluates the exit chain over the holdings registry before
// the execution window opens, so sells can be placed in the same window
// as confirmed buys.
type ExitScanJob struct {
	market       *marketfilter.Filter
	exits        *exits.Manager
	holdingsFile string
	logger       *logger.Logger
}

// NewExitScanJob creates a new exit scan job.
func NewExitScanJob(market *marketfilter.Filter, mgr *exits.Manager,
	holdingsFile string, log *logger.Logger) *ExitScanJob {

	return &ExitScanJob{
		market:       market,
		exits:        mgr,
		holdingsFile: holdingsFile,
		logger:       log,
	}
}

// Name returns the job name
func (j *ExitScanJob) Name() string {
	return "exit_scan"
}

// Schedule returns the cron schedule (14:30 CST on trading weekdays)
func (j *ExitScanJob) Schedule() string {
	return "CRON_TZ=Asia/Shanghai 0 30 14 * * 1-5"
}

// Run executes the exit evaluation
func (j *ExitScanJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled exit scan")

	book, err := holdings.Load(j.holdingsFile)
	if err != nil {
		return fmt.Errorf("load holdings: %w", err)
	}
	if len(book) == 0 {
		j.logger.Info("No holdings registered, nothing to evaluate")
		return nil
	}

	market := j.market.Check(ctx)
	sigs := j.exits.Evaluate(ctx, book, market)

	summary := exits.Summarize(sigs)
	j.logger.WithFields(map[string]interface{}{
		"holdings": len(book),
		"signals":  summary.Total,
	}).Info("Exit scan completed")

	for _, s := range sigs {
		j.logger.WithFields(map[string]interface{}{
			"code":     s.Code,
			"type":     string(s.ExitType),
			"priority": int(s.Priority),
			"action":   s.SuggestedAction,
			"pnl_pct":  s.PnLPct,
		}).Warn("Exit signal")
	}

	return nil
}
