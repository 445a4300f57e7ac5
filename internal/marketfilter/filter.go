package marketfilter

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/indicators"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
	"github.com/wonny/techstock/pkg/metrics"
)

// =============================================================================
// Market regime gate
// =============================================================================

// Filter decides whether the benchmark regime allows new entries. Every
// failure path yields red: a gate that cannot be evaluated stays shut.
type Filter struct {
	indexes datafeed.IndexSource
	cfg     *strategy.Config
	logger  *logger.Logger
	metrics *metrics.Registry
}

// New creates the market regime filter.
func New(indexes datafeed.IndexSource, cfg *strategy.Config, log *logger.Logger, m *metrics.Registry) *Filter {
	return &Filter{
		indexes: indexes,
		cfg:     cfg,
		logger:  log,
		metrics: m,
	}
}

// Check evaluates the benchmark index. Green requires both conditions:
// close above MA20 and the MACD not in a death cross.
func (f *Filter) Check(ctx context.Context) contracts.MarketStatus {
	status := f.evaluate(ctx)

	if f.metrics != nil {
		f.metrics.SetMarketGreen(status.IsGreen)
	}
	f.logger.WithFields(map[string]interface{}{
		"index":      f.cfg.Benchmark.IndexCode,
		"is_green":   status.IsGreen,
		"close":      status.Close,
		"ma20":       status.MA20,
		"macd_state": string(status.MACDState),
		"reason":     status.Reason,
	}).Info("Market regime checked")

	return status
}

func (f *Filter) evaluate(ctx context.Context) contracts.MarketStatus {
	red := contracts.MarketStatus{
		IsGreen:   false,
		MACDState: contracts.MACDNeutral,
		CheckDate: time.Now(),
	}

	bars, err := f.indexes.IndexHistory(ctx, f.cfg.Benchmark.IndexCode)
	if err != nil {
		red.Reason = fmt.Sprintf("index fetch failed: %v", err)
		return red
	}

	maMid := f.cfg.Indicators.MAMid
	if len(bars) < maMid {
		red.Reason = fmt.Sprintf("insufficient history: %d bars, need %d", len(bars), maMid)
		return red
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	ma20Series := indicators.SMA(closes, maMid)
	ma20, ok := indicators.Last(ma20Series)
	if !ok {
		red.Reason = "ma20 unavailable"
		return red
	}

	last := bars[len(bars)-1]
	status := contracts.MarketStatus{
		Close:     last.Close,
		MA20:      ma20,
		MACDState: macdState(closes),
		CheckDate: last.Date,
	}

	aboveMA := last.Close > ma20
	noDeath := status.MACDState != contracts.MACDDeathCross

	switch {
	case aboveMA && noDeath:
		status.IsGreen = true
		status.Reason = "close above ma20, no macd death cross"
	case !aboveMA && noDeath:
		status.Reason = fmt.Sprintf("close %.2f at or below ma20 %.2f", last.Close, ma20)
	case aboveMA && !noDeath:
		status.Reason = "macd death cross"
	default:
		status.Reason = fmt.Sprintf("close %.2f at or below ma20 %.2f, macd death cross", last.Close, ma20)
	}

	return status
}

// macdState classifies the DIF/DEA relationship over the last two valid
// rows: a cross happened when the sign of DIF-DEA flipped.
func macdState(closes []float64) contracts.MACDState {
	dif, dea, _ := indicators.MACD(closes)

	n := len(dif)
	if n < 2 {
		return contracts.MACDNeutral
	}

	curDif, ok1 := indicators.At(dif, n-1)
	curDea, ok2 := indicators.At(dea, n-1)
	prevDif, ok3 := indicators.At(dif, n-2)
	prevDea, ok4 := indicators.At(dea, n-2)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return contracts.MACDNeutral
	}

	prevAbove := prevDif > prevDea
	// A tie counts as above: dif touching dea is not a death cross.
	curAbove := curDif >= curDea

	switch {
	case !prevAbove && curAbove:
		return contracts.MACDGoldenCross
	case prevAbove && !curAbove:
		return contracts.MACDDeathCross
	case curAbove:
		return contracts.MACDGoldenCross
	default:
		return contracts.MACDDeathCross
	}
}
