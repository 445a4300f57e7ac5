package contracts

import "time"

// =============================================================================
// Buy signals (EOD time-gated)
// =============================================================================

// TechBuySignal is one qualified entry recommendation. IsConfirmed is
// derived from wall-clock time at generation and never mutated afterward:
// before 14:45 local time a signal is pending, at or after 14:45 it is
// confirmed for same-day action in the 14:45-15:00 window.
type TechBuySignal struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Sector string `json:"sector"`

	Price       float64 `json:"price"`
	MA5         float64 `json:"ma5"`
	MA20        float64 `json:"ma20"`
	MA60        float64 `json:"ma60"`
	RSI         float64 `json:"rsi"`
	VolumeRatio float64 `json:"volume_ratio"`

	RevenueGrowth bool `json:"revenue_growth"`
	ProfitGrowth  bool `json:"profit_growth"`
	HasUnlock     bool `json:"has_unlock"`

	// Weighted composite, 0-100
	SignalStrength float64 `json:"signal_strength"`

	GeneratedAt      time.Time  `json:"generated_at"`
	IsConfirmed      bool       `json:"is_confirmed"`
	ConfirmationTime *time.Time `json:"confirmation_time,omitempty"`
	ConditionsMet    []string   `json:"conditions_met"`
}

// SignalSummary aggregates one generation run.
type SignalSummary struct {
	Total       int            `json:"total"`
	Confirmed   int            `json:"confirmed"`
	Pending     int            `json:"pending"`
	BySector    map[string]int `json:"by_sector"`
	AvgStrength float64        `json:"avg_strength"`
}

// TradingWindowState describes where "now" sits relative to the EOD
// execution window.
type TradingWindowState string

const (
	WindowPre    TradingWindowState = "pre"    // before 14:45
	WindowOpen   TradingWindowState = "open"   // 14:45-15:00
	WindowClosed TradingWindowState = "closed" // after 15:00
)

// TradingWindowStatus reports the EOD window state and, while open, the
// minutes remaining until close.
type TradingWindowStatus struct {
	State            TradingWindowState `json:"state"`
	MinutesRemaining int                `json:"minutes_remaining"`
	CheckedAt        time.Time          `json:"checked_at"`
}
