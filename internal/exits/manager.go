package exits

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/indicators"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
	"github.com/wonny/techstock/pkg/metrics"
)

// =============================================================================
// Exit priority chain
// =============================================================================

// Manager evaluates open holdings against the exit chain. Rules are
// checked in priority order and the first match wins, so each holding
// yields at most one signal per run.
type Manager struct {
	prices    datafeed.PriceSource
	snapshots datafeed.SnapshotSource
	cfg       *strategy.Config
	logger    *logger.Logger
	metrics   *metrics.Registry

	now func() time.Time
}

// New creates the exit manager.
func New(prices datafeed.PriceSource, snapshots datafeed.SnapshotSource,
	cfg *strategy.Config, log *logger.Logger, m *metrics.Registry) *Manager {

	return &Manager{
		prices:    prices,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    log,
		metrics:   m,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock. Used in tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// position is one holding with its derived indicator state.
type position struct {
	holding   contracts.Holding
	price     float64
	pnlPct    float64
	rsi       float64
	ma5       float64
	ma20      float64
	breakDays int
}

// Evaluate runs the chain over every holding. Output is sorted by
// priority, most urgent first. Holdings whose data cannot be fetched are
// skipped with a warning rather than failing the whole run.
func (m *Manager) Evaluate(ctx context.Context, holdings []contracts.Holding, market contracts.MarketStatus) []contracts.TechExitSignal {
	var out []contracts.TechExitSignal

	for _, h := range holdings {
		pos, err := m.load(ctx, h)
		if err != nil {
			m.logger.WithError(err).WithField("stock_code", h.Code).Warn("Exit evaluation skipped")
			continue
		}

		sig := m.check(pos, market)
		if sig == nil {
			continue
		}
		out = append(out, *sig)

		if m.metrics != nil {
			m.metrics.ExitSignals.WithLabelValues(string(sig.ExitType)).Inc()
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})

	m.logger.WithFields(map[string]interface{}{
		"holdings": len(holdings),
		"signals":  len(out),
	}).Info("Exit chain evaluated")

	return out
}

// load derives the indicator state for one holding.
func (m *Manager) load(ctx context.Context, h contracts.Holding) (*position, error) {
	bars, err := m.prices.PriceHistory(ctx, h.Code)
	if err != nil {
		return nil, err
	}
	if len(bars) < m.cfg.Indicators.MAMid {
		return nil, fmt.Errorf("insufficient history: %d bars", len(bars))
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	ma5, ok1 := indicators.Last(indicators.SMA(closes, m.cfg.Indicators.MAShort))
	ma20, ok2 := indicators.Last(indicators.SMA(closes, m.cfg.Indicators.MAMid))
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("moving averages unavailable")
	}
	rsi, _ := indicators.Last(indicators.RSI(closes, m.cfg.Indicators.RSIPeriod))

	price := closes[len(closes)-1]
	if m.snapshots != nil {
		if snap, err := m.snapshots.Snapshot(ctx, h.Code); err == nil && snap != nil && snap.Price > 0 {
			price = snap.Price
		}
	}

	if h.BuyPrice <= 0 {
		return nil, fmt.Errorf("invalid buy price %.2f", h.BuyPrice)
	}

	return &position{
		holding:   h,
		price:     price,
		pnlPct:    (price - h.BuyPrice) / h.BuyPrice,
		rsi:       rsi,
		ma5:       ma5,
		ma20:      ma20,
		breakDays: indicators.ConsecutiveBelow(closes, indicators.SMA(closes, m.cfg.Indicators.MAMid)),
	}, nil
}

// check walks the chain in priority order.
func (m *Manager) check(pos *position, market contracts.MarketStatus) *contracts.TechExitSignal {
	if !market.IsGreen && pos.pnlPct < 0 {
		return m.signal(pos, contracts.ExitEmergency, contracts.PriorityEmergency,
			fmt.Sprintf("sell all %d shares at open", pos.holding.Quantity))
	}

	if pos.pnlPct <= m.cfg.Exit.HardStopLoss {
		return m.signal(pos, contracts.ExitStopLoss, contracts.PriorityStopLoss,
			fmt.Sprintf("sell all %d shares, stop loss breached", pos.holding.Quantity))
	}

	if pos.rsi > m.cfg.Exit.RSIOverbought {
		if pos.holding.Quantity >= 2*m.cfg.Exit.MinPositionShares {
			sell := sellHalf(pos.holding.Quantity, m.cfg.Exit.MinPositionShares)
			return m.signal(pos, contracts.ExitTakeProfit, contracts.PriorityTakeProfit,
				fmt.Sprintf("sell %d shares, keep %d", sell, pos.holding.Quantity-sell))
		}
		// single lot: keep the position, tighten the stop to MA5
		sig := m.signal(pos, contracts.ExitTakeProfit, contracts.PriorityTakeProfit,
			fmt.Sprintf("hold, tighten stop to ma5 %.2f", pos.ma5))
		if pos.ma5 > sig.StopLossPrice {
			sig.StopLossPrice = pos.ma5
		}
		return sig
	}

	if pos.breakDays >= m.cfg.Exit.MA20BreakDays {
		return m.signal(pos, contracts.ExitTrendBreak, contracts.PriorityTrendBreak,
			fmt.Sprintf("sell all %d shares, trend broken %d sessions", pos.holding.Quantity, pos.breakDays))
	}

	return nil
}

func (m *Manager) signal(pos *position, exitType contracts.ExitType, priority contracts.SignalPriority, action string) *contracts.TechExitSignal {
	return &contracts.TechExitSignal{
		Code:            pos.holding.Code,
		Name:            pos.holding.Name,
		ExitType:        exitType,
		Priority:        priority,
		CurrentPrice:    pos.price,
		StopLossPrice:   m.stopPrice(pos),
		CostPrice:       pos.holding.BuyPrice,
		PnLPct:          pos.pnlPct,
		RSI:             pos.rsi,
		MA5:             pos.ma5,
		MA20:            pos.ma20,
		MA20BreakDays:   pos.breakDays,
		Shares:          pos.holding.Quantity,
		IsMinPosition:   pos.holding.Quantity == m.cfg.Exit.MinPositionShares,
		SuggestedAction: action,
		UrgencyColor:    contracts.PriorityColor[priority],
		GeneratedAt:     m.now(),
	}
}

// stopPrice is the ratcheted protective stop. It tightens as profit
// grows and never loosens: below the first profit tier the stop sits at
// the hard-stop distance from cost, between the tiers it moves to cost,
// and above the second tier it trails MA5 but never drops back under
// cost.
func (m *Manager) stopPrice(pos *position) float64 {
	cost := pos.holding.BuyPrice

	switch {
	case pos.pnlPct > m.cfg.Exit.ProfitThreshold2:
		if pos.ma5 > cost {
			return pos.ma5
		}
		return cost
	case pos.pnlPct >= m.cfg.Exit.ProfitThreshold1:
		return cost
	default:
		return cost * (1 + m.cfg.Exit.HardStopLoss)
	}
}

// sellHalf rounds half the position down to a full lot, selling at
// least one lot.
func sellHalf(quantity, lot int) int {
	sell := quantity / 2
	sell -= sell % lot
	if sell < lot {
		sell = lot
	}
	return sell
}

// Summarize aggregates one evaluation run.
func Summarize(signals []contracts.TechExitSignal) contracts.ExitSummary {
	s := contracts.ExitSummary{
		Total:  len(signals),
		ByType: make(map[contracts.ExitType]int),
	}
	for _, sig := range signals {
		s.ByType[sig.ExitType]++
		if sig.IsMinPosition {
			s.MinPositions++
		}
	}
	return s
}
