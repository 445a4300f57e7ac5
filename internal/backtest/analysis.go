package backtest

import (
	"fmt"
	"time"

	"github.com/wonny/techstock/internal/contracts"
)

// effectivenessRatio: the regime gate counts as effective when the
// stress window trades at less than this share of the overall pace.
const effectivenessRatio = 0.7

type periodSpec struct {
	name  string
	start time.Time
	end   time.Time
}

func periodSpecs() []periodSpec {
	d := func(y int, m time.Month, day int) time.Time {
		return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	}
	return []periodSpec{
		{"2022", d(2022, 1, 1), d(2022, 12, 31)},
		{"2023H1", d(2023, 1, 1), d(2023, 6, 30)},
		{"2023H2", d(2023, 7, 1), d(2023, 12, 31)},
		{"2024", d(2024, 1, 1), d(2024, 12, 31)},
	}
}

// finalize computes the headline metrics, the period breakdown, and the
// bear-market analysis from the raw curve and fills.
func (e *Engine) finalize(result *contracts.BacktestResult, calendar []time.Time) {
	capital := e.cfg.Backtest.InitialCapital

	if n := len(result.EquityCurve); n > 0 && capital > 0 {
		result.TotalReturn = result.EquityCurve[n-1].Equity/capital - 1
	}
	result.MaxDrawdown = maxDrawdown(result.EquityCurve)
	result.WinRate = winRate(result.Trades)
	result.DrawdownWarning = result.MaxDrawdown < e.cfg.Backtest.MaxDrawdownThreshold

	for _, spec := range periodSpecs() {
		trades := tradesIn(result.Trades, spec.start, spec.end)
		result.TradesByPeriod[spec.name] = len(trades)

		curve := curveIn(result.EquityCurve, spec.start, spec.end)
		if len(curve) == 0 {
			continue
		}
		perf := contracts.PeriodPerformance{
			Period:      spec.name,
			StartDate:   curve[0].Date,
			EndDate:     curve[len(curve)-1].Date,
			MaxDrawdown: maxDrawdown(curve),
			Trades:      len(trades),
			WinRate:     winRate(trades),
		}
		if curve[0].Equity > 0 {
			perf.Return = curve[len(curve)-1].Equity/curve[0].Equity - 1
		}
		result.PeriodPerformances = append(result.PeriodPerformances, perf)
	}

	e.bearMarketAnalysis(result, calendar)
}

// bearMarketAnalysis checks whether the regime gate actually slowed
// trading during the stress window.
func (e *Engine) bearMarketAnalysis(result *contracts.BacktestResult, calendar []time.Time) {
	stressStart, err1 := time.Parse(dateLayout, e.cfg.Backtest.StressStart)
	stressEnd, err2 := time.Parse(dateLayout, e.cfg.Backtest.StressEnd)
	if err1 != nil || err2 != nil {
		return
	}

	var stressSessions int
	for _, d := range calendar {
		if !d.Before(stressStart) && !d.After(stressEnd) {
			stressSessions++
		}
	}
	if stressSessions == 0 || len(calendar) == 0 {
		result.BearMarketReport = "stress window not covered by market data"
		return
	}
	result.BearMarketValidated = true

	stressTrades := len(tradesIn(result.Trades, stressStart, stressEnd))
	stressRate := float64(stressTrades) / float64(stressSessions)
	overallRate := float64(result.TotalTrades) / float64(len(calendar))

	result.MarketFilterEffective = result.TotalTrades > 0 && stressRate < effectivenessRatio*overallRate

	stressCurve := curveIn(result.EquityCurve, stressStart, stressEnd)
	var stressReturn float64
	if len(stressCurve) > 0 && stressCurve[0].Equity > 0 {
		stressReturn = stressCurve[len(stressCurve)-1].Equity/stressCurve[0].Equity - 1
	}

	result.BearMarketReport = fmt.Sprintf(
		"stress window %s to %s: %d trades over %d sessions (%.3f/session vs %.3f overall), return %.2f%%, max drawdown %.2f%%, filter effective: %v",
		e.cfg.Backtest.StressStart, e.cfg.Backtest.StressEnd,
		stressTrades, stressSessions, stressRate, overallRate,
		stressReturn*100, maxDrawdown(stressCurve)*100,
		result.MarketFilterEffective,
	)
}

// maxDrawdown is the worst peak-to-trough decline, as a negative
// fraction.
func maxDrawdown(curve []contracts.EquityPoint) float64 {
	var worst float64
	var peak float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := p.Equity/peak - 1
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// winRate is the share of sell fills closed at a profit.
func winRate(trades []contracts.Trade) float64 {
	var sells, wins int
	for _, t := range trades {
		if t.Action != contracts.TradeSell {
			continue
		}
		sells++
		if t.PnL > 0 {
			wins++
		}
	}
	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells)
}

func tradesIn(trades []contracts.Trade, start, end time.Time) []contracts.Trade {
	var out []contracts.Trade
	for _, t := range trades {
		if !t.Date.Before(start) && !t.Date.After(end) {
			out = append(out, t)
		}
	}
	return out
}

func curveIn(curve []contracts.EquityPoint, start, end time.Time) []contracts.EquityPoint {
	var out []contracts.EquityPoint
	for _, p := range curve {
		if !p.Date.Before(start) && !p.Date.After(end) {
			out = append(out, p)
		}
	}
	return out
}
