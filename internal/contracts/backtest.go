package contracts

import "time"

// =============================================================================
// Backtest records
// =============================================================================

// TradeAction distinguishes entry from exit fills.
type TradeAction string

const (
	TradeBuy  TradeAction = "buy"
	TradeSell TradeAction = "sell"
)

// Trade is one simulated fill.
type Trade struct {
	Code   string      `json:"code"`
	Action TradeAction `json:"action"`
	Date   time.Time   `json:"date"`
	Price  float64     `json:"price"`
	Shares int         `json:"shares"`
	PnL    float64     `json:"pnl"`     // realized, sells only
	PnLPct float64     `json:"pnl_pct"` // realized, sells only
	Reason string      `json:"reason"`
}

// EquityPoint is one mark-to-market snapshot. The invariant
// Equity == Cash + HoldingsValue holds at every point.
type EquityPoint struct {
	Date          time.Time `json:"date"`
	Equity        float64   `json:"equity"`
	Cash          float64   `json:"cash"`
	HoldingsValue float64   `json:"holdings_value"`
}

// PeriodPerformance is one calendar bucket of the period breakdown.
type PeriodPerformance struct {
	Period      string    `json:"period"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Return      float64   `json:"return"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Trades      int       `json:"trades"`
	WinRate     float64   `json:"win_rate"`
}

// BacktestResult is created once per run and immutable after return.
type BacktestResult struct {
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
	TotalTrades int     `json:"total_trades"`
	WinRate     float64 `json:"win_rate"`

	TradesByPeriod     map[string]int      `json:"trades_by_period"`
	PeriodPerformances []PeriodPerformance `json:"period_performances"`

	DrawdownWarning       bool   `json:"drawdown_warning"`
	MarketFilterEffective bool   `json:"market_filter_effective"`
	BearMarketValidated   bool   `json:"bear_market_validated"`
	BearMarketReport      string `json:"bear_market_report"`

	DataWarnings []string `json:"data_warnings"`

	EquityCurve []EquityPoint `json:"equity_curve,omitempty"`
	Trades      []Trade       `json:"trades,omitempty"`
}
