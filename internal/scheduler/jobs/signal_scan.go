package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/techstock/internal/marketfilter"
	"github.com/wonny/techstock/internal/sector"
	"github.com/wonny/techstock/internal/signals"
	"github.com/wonny/techstock/pkg/logger"
)

// SignalScanJob runs the entry pipeline at the confirmation time so that
// confirmed buy signals land inside the 14:45-15:00 execution window.
type SignalScanJob struct {
	market  *marketfilter.Filter
	sectors *sector.Ranker
	signals *signals.Generator
	logger  *logger.Logger
}

// NewSignalScanJob creates a new signal scan job.
func NewSignalScanJob(market *marketfilter.Filter, sectors *sector.Ranker,
	gen *signals.Generator, log *logger.Logger) *SignalScanJob {

	return &SignalScanJob{
		market:  market,
		sectors: sectors,
		signals: gen,
		logger:  log,
	}
}

// Name returns the job name
func (j *SignalScanJob) Name() string {
	return "signal_scan"
}

// Schedule returns the cron schedule (14:45 CST on trading weekdays)
func (j *SignalScanJob) Schedule() string {
	return "CRON_TZ=Asia/Shanghai 0 45 14 * * 1-5"
}

// Run executes the entry pipeline
func (j *SignalScanJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled signal scan")

	if _, err := j.sectors.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh sectors: %w", err)
	}

	market := j.market.Check(ctx)

	sigs, err := j.signals.Generate(ctx, market)
	if err != nil {
		return fmt.Errorf("generate signals: %w", err)
	}

	summary := signals.Summarize(sigs)
	j.logger.WithFields(map[string]interface{}{
		"market_green": market.IsGreen,
		"total":        summary.Total,
		"confirmed":    summary.Confirmed,
		"avg_strength": summary.AvgStrength,
	}).Info("Signal scan completed")

	for _, s := range sigs {
		j.logger.WithFields(map[string]interface{}{
			"code":     s.Code,
			"name":     s.Name,
			"sector":   s.Sector,
			"strength": s.SignalStrength,
			"price":    s.Price,
		}).Info("Buy signal")
	}

	return nil
}
