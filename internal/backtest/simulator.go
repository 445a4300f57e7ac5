package backtest

import (
	"time"

	"github.com/wonny/techstock/internal/contracts"
)

// =============================================================================
// Portfolio simulator
// =============================================================================

// Position is one open simulated holding. Stop carries the ratcheted
// protective level and only ever moves up.
type Position struct {
	Code       string
	Shares     int
	CostPrice  float64
	BuyDate    time.Time
	BuySession int
	Stop       float64
	LastClose  float64
}

// Simulator is the cash-and-positions book. Fills are frictionless: the
// strategy trades at the daily close with no commission or slippage.
type Simulator struct {
	cash      float64
	positions map[string]*Position
	trades    []contracts.Trade
}

// NewSimulator opens a book with the given starting cash.
func NewSimulator(capital float64) *Simulator {
	return &Simulator{
		cash:      capital,
		positions: make(map[string]*Position),
	}
}

// Buy opens a position. The caller guarantees shares is a positive
// multiple of the lot size and that cash covers the fill.
func (s *Simulator) Buy(code string, date time.Time, session int, price float64, shares int, stop float64, reason string) {
	s.cash -= price * float64(shares)
	s.positions[code] = &Position{
		Code:       code,
		Shares:     shares,
		CostPrice:  price,
		BuyDate:    date,
		BuySession: session,
		Stop:       stop,
		LastClose:  price,
	}
	s.trades = append(s.trades, contracts.Trade{
		Code:   code,
		Action: contracts.TradeBuy,
		Date:   date,
		Price:  price,
		Shares: shares,
		Reason: reason,
	})
}

// Sell closes part or all of a position and books realized pnl.
func (s *Simulator) Sell(code string, date time.Time, price float64, shares int, reason string) {
	pos, ok := s.positions[code]
	if !ok || shares <= 0 {
		return
	}
	if shares > pos.Shares {
		shares = pos.Shares
	}

	s.cash += price * float64(shares)
	s.trades = append(s.trades, contracts.Trade{
		Code:   code,
		Action: contracts.TradeSell,
		Date:   date,
		Price:  price,
		Shares: shares,
		PnL:    (price - pos.CostPrice) * float64(shares),
		PnLPct: (price - pos.CostPrice) / pos.CostPrice,
		Reason: reason,
	})

	pos.Shares -= shares
	if pos.Shares == 0 {
		delete(s.positions, code)
	}
}

// Cash returns the free cash balance.
func (s *Simulator) Cash() float64 { return s.cash }

// Position returns the open position for a code, or nil.
func (s *Simulator) Position(code string) *Position { return s.positions[code] }

// Positions returns the open book.
func (s *Simulator) Positions() map[string]*Position { return s.positions }

// OpenCount returns the number of open positions.
func (s *Simulator) OpenCount() int { return len(s.positions) }

// Trades returns every fill so far, in execution order.
func (s *Simulator) Trades() []contracts.Trade { return s.trades }

// MarkToMarket values the book at the given closes. Positions without a
// close today are valued at their last known close, so the equity
// identity Equity == Cash + HoldingsValue holds on every session.
func (s *Simulator) MarkToMarket(date time.Time, closes map[string]float64) contracts.EquityPoint {
	var holdings float64
	for code, pos := range s.positions {
		if c, ok := closes[code]; ok {
			pos.LastClose = c
		}
		holdings += pos.LastClose * float64(pos.Shares)
	}
	return contracts.EquityPoint{
		Date:          date,
		Equity:        s.cash + holdings,
		Cash:          s.cash,
		HoldingsValue: holdings,
	}
}
