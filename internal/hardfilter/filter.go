package hardfilter

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
	"github.com/wonny/techstock/pkg/metrics"
)

// Filter applies the small-capital eligibility bounds: price cap, market
// cap band, and average turnover floor. All boundaries are inclusive on
// the allowed side. The three checks run independently so a rejection
// lists every violated bound.
type Filter struct {
	snapshots datafeed.SnapshotSource
	cfg       *strategy.Config
	logger    *logger.Logger
	metrics   *metrics.Registry
}

// New creates the hard filter.
func New(snapshots datafeed.SnapshotSource, cfg *strategy.Config, log *logger.Logger, m *metrics.Registry) *Filter {
	return &Filter{
		snapshots: snapshots,
		cfg:       cfg,
		logger:    log,
		metrics:   m,
	}
}

// CheckSnapshot evaluates one snapshot against the bounds.
func (f *Filter) CheckSnapshot(snap *contracts.StockSnapshot) contracts.HardFilterResult {
	hf := f.cfg.HardFilter
	res := contracts.HardFilterResult{
		Code:        snap.Code,
		Name:        snap.Name,
		Price:       snap.Price,
		MarketCap:   snap.MarketCap,
		AvgTurnover: snap.AvgTurnover,
	}

	if snap.Price > hf.MaxPrice {
		res.RejectReasons = append(res.RejectReasons,
			fmt.Sprintf("price %.2f above limit %.2f", snap.Price, hf.MaxPrice))
		f.countReject("price")
	}
	if snap.MarketCap < hf.MinMarketCap || snap.MarketCap > hf.MaxMarketCap {
		res.RejectReasons = append(res.RejectReasons,
			fmt.Sprintf("market cap %.1f outside [%.0f, %.0f]", snap.MarketCap, hf.MinMarketCap, hf.MaxMarketCap))
		f.countReject("market_cap")
	}
	if snap.AvgTurnover < hf.MinAvgTurnover {
		res.RejectReasons = append(res.RejectReasons,
			fmt.Sprintf("avg turnover %.2f below floor %.2f", snap.AvgTurnover, hf.MinAvgTurnover))
		f.countReject("turnover")
	}

	res.Passed = len(res.RejectReasons) == 0
	return res
}

// CheckAll evaluates every pool symbol. Symbols with no snapshot are
// rejected with a data reason rather than skipped silently.
func (f *Filter) CheckAll(ctx context.Context, codes []string) ([]contracts.HardFilterResult, error) {
	results := make([]contracts.HardFilterResult, 0, len(codes))

	for _, code := range codes {
		snap, err := f.snapshots.Snapshot(ctx, code)
		if err != nil {
			f.logger.WithError(err).WithField("stock_code", code).Warn("Snapshot fetch failed")
			results = append(results, contracts.HardFilterResult{
				Code:          code,
				RejectReasons: []string{"snapshot fetch failed"},
			})
			f.countReject("no_data")
			continue
		}
		if snap == nil {
			results = append(results, contracts.HardFilterResult{
				Code:          code,
				RejectReasons: []string{"no snapshot data"},
			})
			f.countReject("no_data")
			continue
		}
		results = append(results, f.CheckSnapshot(snap))
	}

	summary := Summarize(results)
	f.logger.WithFields(map[string]interface{}{
		"total":     summary.Total,
		"passed":    summary.Passed,
		"pass_rate": summary.PassRate,
	}).Info("Hard filter applied")

	return results, nil
}

// Summarize aggregates a filter batch.
func Summarize(results []contracts.HardFilterResult) contracts.FilterSummary {
	s := contracts.FilterSummary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
			continue
		}
		for _, reason := range r.RejectReasons {
			switch {
			case strings.HasPrefix(reason, "price"):
				s.RejectPrice++
			case strings.HasPrefix(reason, "market cap"):
				s.RejectCap++
			case strings.HasPrefix(reason, "avg turnover"):
				s.RejectTurnover++
			}
		}
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
	}
	return s
}

func (f *Filter) countReject(reason string) {
	if f.metrics != nil {
		f.metrics.FilterReject.WithLabelValues(reason).Inc()
	}
}
