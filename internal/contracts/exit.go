package contracts

import "time"

// =============================================================================
// Exit signals (priority chain, first match wins)
// =============================================================================

// SignalPriority orders exit signals; lower value means more urgent.
type SignalPriority int

const (
	PriorityEmergency  SignalPriority = 1 // market red + position losing
	PriorityStopLoss   SignalPriority = 2 // pnl <= -10%
	PriorityTakeProfit SignalPriority = 3 // RSI > 85 partial exit
	PriorityTrendBreak SignalPriority = 4 // close < MA20 for 2+ sessions
)

// ExitType names the rule that fired.
type ExitType string

const (
	ExitEmergency  ExitType = "EMERGENCY"
	ExitStopLoss   ExitType = "STOP_LOSS"
	ExitTakeProfit ExitType = "TAKE_PROFIT"
	ExitTrendBreak ExitType = "TREND_BREAK"
)

// PriorityColor maps each priority to its dashboard urgency color.
var PriorityColor = map[SignalPriority]string{
	PriorityEmergency:  "red",
	PriorityStopLoss:   "orange",
	PriorityTakeProfit: "yellow",
	PriorityTrendBreak: "blue",
}

// TechExitSignal is at most one recommendation per holding per evaluation.
type TechExitSignal struct {
	Code     string         `json:"code"`
	Name     string         `json:"name"`
	ExitType ExitType       `json:"exit_type"`
	Priority SignalPriority `json:"priority"`

	CurrentPrice  float64 `json:"current_price"`
	StopLossPrice float64 `json:"stop_loss_price"`
	CostPrice     float64 `json:"cost_price"`
	PnLPct        float64 `json:"pnl_pct"`

	RSI           float64 `json:"rsi"`
	MA5           float64 `json:"ma5"`
	MA20          float64 `json:"ma20"`
	MA20BreakDays int     `json:"ma20_break_days"`

	Shares        int  `json:"shares"`
	IsMinPosition bool `json:"is_min_position"` // exactly one 100-share lot

	SuggestedAction string    `json:"suggested_action"`
	UrgencyColor    string    `json:"urgency_color"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// ExitSummary aggregates one exit evaluation run.
type ExitSummary struct {
	Total        int              `json:"total"`
	ByType       map[ExitType]int `json:"by_type"`
	MinPositions int              `json:"min_positions"`
}

// Holding is one open position from the holdings registry. The exit
// manager reads holdings and never mutates them.
type Holding struct {
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	BuyPrice float64   `json:"buy_price"`
	BuyDate  time.Time `json:"buy_date"`
	Quantity int       `json:"quantity"`
	Strategy string    `json:"strategy"`
	Note     string    `json:"note"`
}
