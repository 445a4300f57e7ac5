package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/external/eastmoney"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
)

// archiveFetchBars covers recent sessions plus enough history to rebuild
// the indicator warm-up after a gap.
const archiveFetchBars = 120

// ArchiveJob persists daily bars for the whole pool and the configured
// indexes after the close, so backtests and indicator warm-ups can run
// from local storage.
type ArchiveJob struct {
	client *eastmoney.Client
	store  *datafeed.Store
	cfg    *strategy.Config
	logger *logger.Logger
}

// NewArchiveJob creates a new archive job.
func NewArchiveJob(client *eastmoney.Client, store *datafeed.Store,
	cfg *strategy.Config, log *logger.Logger) *ArchiveJob {

	return &ArchiveJob{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: log,
	}
}

// Name returns the job name
func (j *ArchiveJob) Name() string {
	return "daily_archive"
}

// Schedule returns the cron schedule (15:30 CST on trading weekdays,
// after the close)
func (j *ArchiveJob) Schedule() string {
	return "CRON_TZ=Asia/Shanghai 0 30 15 * * 1-5"
}

// Run fetches and upserts bars for every configured symbol and index.
func (j *ArchiveJob) Run(ctx context.Context) error {
	j.logger.Info("Starting daily bar archive")

	var failed int

	indexes := []string{j.cfg.Benchmark.IndexCode}
	for _, s := range j.cfg.Sectors {
		indexes = append(indexes, s.IndexCode)
	}
	for _, code := range indexes {
		bars, err := j.client.IndexKlineHistory(ctx, code, archiveFetchBars)
		if err != nil {
			j.logger.WithError(err).WithField("index", code).Warn("Index fetch failed")
			failed++
			continue
		}
		if err := j.store.SaveBars(ctx, code, true, bars); err != nil {
			return fmt.Errorf("save index %s: %w", code, err)
		}
	}

	codes := j.cfg.AllCodes()
	for _, code := range codes {
		bars, err := j.client.KlineHistory(ctx, code, archiveFetchBars)
		if err != nil {
			j.logger.WithError(err).WithField("code", code).Warn("Kline fetch failed")
			failed++
			continue
		}
		if err := j.store.SaveBars(ctx, code, false, bars); err != nil {
			return fmt.Errorf("save bars %s: %w", code, err)
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"symbols": len(codes),
		"indexes": len(indexes),
		"failed":  failed,
	}).Info("Daily bar archive completed")

	if failed == len(codes)+len(indexes) {
		return fmt.Errorf("all %d fetches failed", failed)
	}
	return nil
}
