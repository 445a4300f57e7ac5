package signals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/hardfilter"
	"github.com/wonny/techstock/internal/indicators"
	"github.com/wonny/techstock/internal/sector"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
	"github.com/wonny/techstock/pkg/metrics"
)

// fullSessionMinutes is one A-share trading day: 09:30-11:30 and
// 13:00-15:00.
const fullSessionMinutes = 240

// Generator produces the EOD buy signals. The red-market veto runs
// before any per-stock work: with the regime gate shut nothing is
// evaluated and the result is empty.
type Generator struct {
	feed    datafeed.MarketData
	sectors *sector.Ranker
	hard    *hardfilter.Filter
	cfg     *strategy.Config
	loc     *time.Location
	logger  *logger.Logger
	metrics *metrics.Registry

	now func() time.Time
}

// New creates the signal generator. loc is the exchange timezone.
func New(feed datafeed.MarketData, sectors *sector.Ranker, hard *hardfilter.Filter,
	cfg *strategy.Config, loc *time.Location, log *logger.Logger, m *metrics.Registry) *Generator {

	return &Generator{
		feed:    feed,
		sectors: sectors,
		hard:    hard,
		cfg:     cfg,
		loc:     loc,
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock replaces the wall clock. Used in tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate runs the full entry pipeline for the given market status.
// Output is sorted by strength, strongest first.
func (g *Generator) Generate(ctx context.Context, market contracts.MarketStatus) ([]contracts.TechBuySignal, error) {
	if !market.IsGreen {
		g.logger.WithField("reason", market.Reason).Warn("Market red, no buy signals generated")
		return nil, nil
	}

	candidates, err := g.candidates(ctx)
	if err != nil {
		return nil, err
	}

	now := g.now().In(g.loc)
	confirmed := !beforeHHMM(now, g.cfg.Window.ConfirmationTime)

	var out []contracts.TechBuySignal
	for _, c := range candidates {
		sig, ok, err := g.evaluate(ctx, c, now)
		if err != nil {
			g.logger.WithError(err).WithField("stock_code", c.code).Warn("Signal evaluation failed")
			continue
		}
		if !ok {
			continue
		}

		sig.GeneratedAt = now
		sig.IsConfirmed = confirmed
		if confirmed {
			ts := now
			sig.ConfirmationTime = &ts
		}
		out = append(out, *sig)

		if g.metrics != nil {
			status := "pending"
			if confirmed {
				status = "confirmed"
			}
			g.metrics.BuySignals.WithLabelValues(sig.Sector, status).Inc()
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SignalStrength > out[j].SignalStrength
	})

	g.logger.WithFields(map[string]interface{}{
		"candidates": len(candidates),
		"signals":    len(out),
		"confirmed":  confirmed,
	}).Info("Buy signals generated")

	return out, nil
}

type candidate struct {
	code   string
	name   string
	sector string
	snap   *contracts.StockSnapshot
}

// candidates intersects the tradable-sector pools with the hard filter.
func (g *Generator) candidates(ctx context.Context) ([]candidate, error) {
	ranks, err := g.sectors.Rankings(ctx)
	if err != nil {
		return nil, fmt.Errorf("sector rankings: %w", err)
	}

	tradable := make(map[string]bool)
	for _, r := range ranks {
		if r.IsTradable {
			tradable[r.SectorName] = true
		}
	}

	var out []candidate
	for _, s := range g.cfg.Sectors {
		if !tradable[s.Name] {
			continue
		}
		for _, m := range s.Pool {
			snap, err := g.feed.Snapshot(ctx, m.Code)
			if err != nil {
				// One symbol's feed trouble must not sink the batch.
				g.logger.WithError(err).WithField("stock_code", m.Code).Warn("Snapshot fetch failed, symbol skipped")
				continue
			}
			if snap == nil {
				continue
			}
			res := g.hard.CheckSnapshot(snap)
			if !res.Passed {
				continue
			}
			out = append(out, candidate{code: m.Code, name: m.Name, sector: s.Name, snap: snap})
		}
	}
	return out, nil
}

// evaluate applies the four entry conditions. All must hold.
func (g *Generator) evaluate(ctx context.Context, c candidate, now time.Time) (*contracts.TechBuySignal, bool, error) {
	bars, err := g.feed.PriceHistory(ctx, c.code)
	if err != nil {
		return nil, false, err
	}
	if len(bars) < g.cfg.Indicators.MALong {
		return nil, false, nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	ma5, ok1 := indicators.Last(indicators.SMA(closes, g.cfg.Indicators.MAShort))
	ma20, ok2 := indicators.Last(indicators.SMA(closes, g.cfg.Indicators.MAMid))
	ma60, ok3 := indicators.Last(indicators.SMA(closes, g.cfg.Indicators.MALong))
	rsi, ok4 := indicators.Last(indicators.RSI(closes, g.cfg.Indicators.RSIPeriod))
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, false, nil
	}

	price := c.snap.Price
	var conditions []string

	// 1. trend alignment
	if !(ma5 >= ma20 && price > ma60) {
		return nil, false, nil
	}
	conditions = append(conditions, "trend: ma5>=ma20, price>ma60")

	// 2. RSI band
	if rsi < g.cfg.Entry.RSIMin || rsi > g.cfg.Entry.RSIMax {
		return nil, false, nil
	}
	conditions = append(conditions, fmt.Sprintf("rsi %.1f in [%.0f, %.0f]", rsi, g.cfg.Entry.RSIMin, g.cfg.Entry.RSIMax))

	// 3. extrapolated volume ratio
	volumeRatio := extrapolatedVolumeRatio(c.snap, now)
	if volumeRatio < g.cfg.Entry.VolumeRatioMin {
		return nil, false, nil
	}
	conditions = append(conditions, fmt.Sprintf("volume ratio %.2f", volumeRatio))

	// 4. fundamentals and unlock screen
	fn, err := g.feed.Fundamentals(ctx, c.code)
	if err != nil {
		return nil, false, err
	}
	revenueGrowth := fn != nil && fn.RevenueGrowth
	profitGrowth := fn != nil && fn.ProfitGrowth
	if !revenueGrowth && !profitGrowth {
		return nil, false, nil
	}

	hasUnlock, err := g.materialUnlock(ctx, c.code, now)
	if err != nil {
		return nil, false, err
	}
	if hasUnlock {
		return nil, false, nil
	}
	conditions = append(conditions, "fundamentals ok, no material unlock")

	sig := &contracts.TechBuySignal{
		Code:          c.code,
		Name:          c.name,
		Sector:        c.sector,
		Price:         price,
		MA5:           ma5,
		MA20:          ma20,
		MA60:          ma60,
		RSI:           rsi,
		VolumeRatio:   volumeRatio,
		RevenueGrowth: revenueGrowth,
		ProfitGrowth:  profitGrowth,
		HasUnlock:     false,
		ConditionsMet: conditions,
	}
	sig.SignalStrength = Strength(rsi, volumeRatio, revenueGrowth, profitGrowth)
	return sig, true, nil
}

// materialUnlock reports whether a large unlock falls inside the entry
// screening window.
func (g *Generator) materialUnlock(ctx context.Context, code string, now time.Time) (bool, error) {
	events, err := g.feed.Unlocks(ctx, code)
	if err != nil {
		return false, err
	}
	horizon := now.AddDate(0, 0, g.cfg.Entry.UnlockWindow)
	for _, e := range events {
		if e.Amount >= contracts.MaterialUnlockAmount && !e.Date.Before(truncateDay(now)) && !e.Date.After(horizon) {
			return true, nil
		}
	}
	return false, nil
}

// Strength is the weighted composite score, capped at 100. RSI in the
// sweet band scores highest, extremes of the allowed band score less.
func Strength(rsi, volumeRatio float64, revenueGrowth, profitGrowth bool) float64 {
	var score float64

	switch {
	case rsi >= 60 && rsi <= 75:
		score += 30
	case (rsi >= 55 && rsi < 60) || (rsi > 75 && rsi <= 80):
		score += 20
	default:
		score += 10
	}

	switch {
	case volumeRatio >= 2.5:
		score += 30
	case volumeRatio >= 2.0:
		score += 25
	case volumeRatio >= 1.5:
		score += 20
	default:
		score += 10
	}

	switch {
	case revenueGrowth && profitGrowth:
		score += 40
	case revenueGrowth || profitGrowth:
		score += 25
	default:
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}

// extrapolatedVolumeRatio projects the intraday cumulative volume to a
// full session and compares it to the 5-day average. Before the open or
// with no average the ratio is zero.
func extrapolatedVolumeRatio(snap *contracts.StockSnapshot, now time.Time) float64 {
	if snap.AvgVolume5D <= 0 {
		return 0
	}
	elapsed := elapsedSessionMinutes(now)
	if elapsed <= 0 {
		return 0
	}
	projected := snap.CumulativeVolume * fullSessionMinutes / float64(elapsed)
	return projected / snap.AvgVolume5D
}

// elapsedSessionMinutes counts trading minutes elapsed today across the
// two sessions, clamped to the full 240.
func elapsedSessionMinutes(now time.Time) int {
	minuteOfDay := now.Hour()*60 + now.Minute()

	const (
		morningOpen    = 9*60 + 30
		morningClose   = 11*60 + 30
		afternoonOpen  = 13 * 60
		afternoonClose = 15 * 60
	)

	var elapsed int
	if minuteOfDay > morningOpen {
		m := minuteOfDay
		if m > morningClose {
			m = morningClose
		}
		elapsed += m - morningOpen
	}
	if minuteOfDay > afternoonOpen {
		m := minuteOfDay
		if m > afternoonClose {
			m = afternoonClose
		}
		elapsed += m - afternoonOpen
	}
	return elapsed
}

// Summarize aggregates one generation run.
func Summarize(signals []contracts.TechBuySignal) contracts.SignalSummary {
	s := contracts.SignalSummary{
		Total:    len(signals),
		BySector: make(map[string]int),
	}
	var strengthSum float64
	for _, sig := range signals {
		if sig.IsConfirmed {
			s.Confirmed++
		} else {
			s.Pending++
		}
		s.BySector[sig.Sector]++
		strengthSum += sig.SignalStrength
	}
	if s.Total > 0 {
		s.AvgStrength = strengthSum / float64(s.Total)
	}
	return s
}

// WindowStatus reports where now sits relative to the EOD execution
// window.
func (g *Generator) WindowStatus() contracts.TradingWindowStatus {
	now := g.now().In(g.loc)
	status := contracts.TradingWindowStatus{CheckedAt: now}

	switch {
	case beforeHHMM(now, g.cfg.Window.ConfirmationTime):
		status.State = contracts.WindowPre
	case beforeHHMM(now, g.cfg.Window.CloseTime):
		status.State = contracts.WindowOpen
		status.MinutesRemaining = minutesUntil(now, g.cfg.Window.CloseTime)
	default:
		status.State = contracts.WindowClosed
	}
	return status
}

func beforeHHMM(now time.Time, hhmm string) bool {
	var h, m int
	fmt.Sscanf(hhmm, "%d:%d", &h, &m)
	return now.Hour()*60+now.Minute() < h*60+m
}

func minutesUntil(now time.Time, hhmm string) int {
	var h, m int
	fmt.Sscanf(hhmm, "%d:%d", &h, &m)
	return h*60 + m - (now.Hour()*60 + now.Minute())
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
