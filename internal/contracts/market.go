package contracts

import "time"

// =============================================================================
// Market data records
// =============================================================================

// PriceBar is one daily OHLCV bar. Series are ascending by date and may
// contain gaps (suspensions, holidays).
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// StockSnapshot is a point-in-time view of a symbol used by the hard filter
// and the signal generator. MarketCap and AvgTurnover are in 100M CNY.
type StockSnapshot struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	MarketCap   float64 `json:"market_cap"`
	AvgTurnover float64 `json:"avg_turnover"`

	// Intraday cumulative volume, used for full-day extrapolation
	CumulativeVolume float64 `json:"cumulative_volume"`
	AvgVolume5D      float64 `json:"avg_volume_5d"`
}

// MACDState describes the DIF/DEA relationship of the benchmark index.
type MACDState string

const (
	MACDGoldenCross MACDState = "golden_cross"
	MACDDeathCross  MACDState = "death_cross"
	MACDNeutral     MACDState = "neutral" // fewer than 2 valid rows
)

// MarketStatus is the regime gate verdict. Created fresh on every
// evaluation, never persisted.
type MarketStatus struct {
	IsGreen   bool      `json:"is_green"`
	Close     float64   `json:"close"`
	MA20      float64   `json:"ma20"`
	MACDState MACDState `json:"macd_state"`
	CheckDate time.Time `json:"check_date"`
	Reason    string    `json:"reason"`
}

// Fundamentals carries the growth flags used by signal generation.
type Fundamentals struct {
	Code          string `json:"code"`
	RevenueGrowth bool   `json:"revenue_growth"`
	ProfitGrowth  bool   `json:"profit_growth"`
}

// UnlockEvent is a scheduled float-share unlock. Amount is in 100M CNY.
type UnlockEvent struct {
	Code   string    `json:"code"`
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// MaterialUnlockAmount is the threshold (100M CNY) above which an upcoming
// unlock blocks new entries.
const MaterialUnlockAmount = 10.0
